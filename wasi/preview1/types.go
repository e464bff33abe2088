package preview1

// ModuleName is the import module guests link syscalls from.
const ModuleName = "wasi_snapshot_preview1"

type filetype uint8

const (
	filetypeUnknown         filetype = 0
	filetypeCharacterDevice filetype = 2
	filetypeDirectory       filetype = 3
	filetypeRegularFile     filetype = 4
)

const (
	fdflagAppend uint16 = 1 << 0
)

const (
	oflagCreat     uint16 = 1 << 0
	oflagDirectory uint16 = 1 << 1
	oflagExcl      uint16 = 1 << 2
	oflagTrunc     uint16 = 1 << 3
)

const (
	whenceSet = 0
	whenceCur = 1
	whenceEnd = 2
)

const (
	rightFdRead  uint64 = 1 << 1
	rightFdWrite uint64 = 1 << 6

	rightsAll  uint64 = 1<<29 - 1
	// fd_* rights bits 0-8, fd_filestat_* bits 21-23, poll bit 27.
	rightsFile uint64 = 0x1FF | 0x7<<21 | 1<<27
	rightsSink uint64 = rightFdRead | rightFdWrite | 1<<5 /* tell */ | 1<<27 /* poll */
)

const (
	clockRealtime         = 0
	clockMonotonic        = 1
	clockProcessCputimeID = 2
	clockThreadCputimeID  = 3
)

const (
	eventtypeClock   = 0
	eventtypeFdRead  = 1
	eventtypeFdWrite = 2

	subclockAbstime = 1 << 0
)

// Guest-visible struct sizes.
const (
	sizeIovec        = 8
	sizeFdstat       = 24
	sizePrestat      = 8
	sizeFilestat     = 64
	sizeDirentHeader = 24
	sizeSubscription = 48
	sizeEvent        = 32
)
