package dag

import "fmt"

type FileType int

const (
	FileInput FileType = iota
	FileOutput
	FileIntermediate
	FileTemp
	// FileGlobal is shared by every node, e.g. a helper executable.
	FileGlobal
)

func (t FileType) String() string {
	switch t {
	case FileInput:
		return "input"
	case FileOutput:
		return "output"
	case FileIntermediate:
		return "intermediate"
	case FileTemp:
		return "temp"
	case FileGlobal:
		return "global"
	default:
		return fmt.Sprintf("file_type(%d)", int(t))
	}
}

type FileState int

const (
	FileUnknown FileState = iota
	FileExpect
	FileExists
	FileComplete
	FileDelete
)

func (s FileState) String() string {
	switch s {
	case FileUnknown:
		return "unknown"
	case FileExpect:
		return "expect"
	case FileExists:
		return "exists"
	case FileComplete:
		return "complete"
	case FileDelete:
		return "delete"
	default:
		return fmt.Sprintf("file_state(%d)", int(s))
	}
}

// File is a path tracked by the workflow.
type File struct {
	Filename string
	Type     FileType
	State    FileState
}
