package command

// Message header layout (spec.md §4.1). The 8-byte frame header
// (version/type/48-bit length) is written by buffer helpers directly;
// headerSize is the 22 remaining header bytes that follow it.
const (
	msgVersion  = 2
	msgTypeRecord = 3

	totalHeaderSize = 30 // 8-byte frame header + 22-byte remaining header
	headerSize      = 22
	fieldHeaderSize = 5 // u32 size (includes type byte) + u8 type
	opHeaderSize    = 8 // u32 size + op + particle_type + version + name_len
)

// info1 read-side flags.
const (
	info1Read           uint8 = 1 << 0
	info1GetAll         uint8 = 1 << 1
	info1Batch          uint8 = 1 << 3
	info1NoBinData      uint8 = 1 << 5
	info1ConsistencyAll uint8 = 1 << 6
)

// info2 write-side flags.
const (
	info2Write          uint8 = 1 << 0
	info2Delete         uint8 = 1 << 1
	info2Generation     uint8 = 1 << 2
	info2GenerationGT   uint8 = 1 << 3
	info2DurableDelete  uint8 = 1 << 4
	info2CreateOnly     uint8 = 1 << 5
	info2RespondAllOps  uint8 = 1 << 7
)

// info3 flags.
const (
	info3Last          uint8 = 1 << 0
	info3CommitMaster  uint8 = 1 << 1
	info3PartitionDone uint8 = 1 << 2
)

// fieldType tags a self-describing request/response field (spec.md §7).
type fieldType uint8

const (
	fieldNamespace      fieldType = 0
	fieldSetName        fieldType = 1
	fieldKey            fieldType = 2
	fieldDigestRipe     fieldType = 4
	fieldTranID         fieldType = 7
	fieldScanOptions    fieldType = 8
	fieldScanTimeout    fieldType = 9
	fieldIndexName      fieldType = 21
	fieldIndexRange     fieldType = 22
	fieldIndexType      fieldType = 26
	fieldBatchIndex     fieldType = 17
	fieldBatchIndexSet  fieldType = 18
	fieldUdfPackageName fieldType = 30
	fieldUdfFunction    fieldType = 31
	fieldUdfArgList     fieldType = 32
	fieldUdfOp          fieldType = 33
	fieldQueryBinList   fieldType = 40
	fieldPIDArray       fieldType = 29
	fieldFilterExp      fieldType = 43
	fieldBVal           fieldType = 25
)

// opCode is the wire op-code for an operation entry (spec.md §4.9/§7).
type opCode uint8

const (
	opRead    opCode = 1
	opWrite   opCode = 2
	opAdd     opCode = 5
	opAppend  opCode = 9
	opPrepend opCode = 10
	opTouch   opCode = 11
	opDelete  opCode = 14
)

// resultOk is the server's success result code (aserrors.ResultOk, repeated
// here to avoid an import solely for one constant already crossed at the
// aserrors boundary in response.go).
const resultOk = 0
