package harness

import "strings"

// RunOptions adjust how a submission is turned into guest source.
type RunOptions struct {
	// PrintTrailingValue prints the value of the snippet's final expression
	// when it is not ().
	PrintTrailingValue bool
}

// Wrapper turns a user snippet into the source file the guest reads.
type Wrapper interface {
	Wrap(code string, opts RunOptions) string
}

// WrapperFunc adapts a function to Wrapper.
type WrapperFunc func(code string, opts RunOptions) string

func (f WrapperFunc) Wrap(code string, opts RunOptions) string { return f(code, opts) }

const printTrailing = `if std::any::Any::type_id(&_code) != std::any::TypeId::of::<()>() { println!("{_code:?}") }`

// RustMainWrapper evaluates the snippet inside a closure in fn main so a
// trailing expression becomes the closure's value.
var RustMainWrapper = WrapperFunc(func(code string, opts RunOptions) string {
	var b strings.Builder
	b.WriteString("fn main() {\nlet _code = (|| {\n")
	b.WriteString(code)
	b.WriteString("\n})();")
	if opts.PrintTrailingValue {
		b.WriteByte('\n')
		b.WriteString(printTrailing)
	}
	b.WriteString("\n}")
	return b.String()
})

// RawWrapper passes the snippet through unchanged.
var RawWrapper = WrapperFunc(func(code string, _ RunOptions) string { return code })
