package ffi

import (
	"errors"
	"strconv"

	"github.com/gogpu/kelp"
)

// Code is the numeric result of a call across the C boundary. Values are
// stable: new codes are only ever appended.
type Code int32

// Generic codes.
const (
	CodeSuccess Code = 0
	CodeNull    Code = 1
	CodePanic   Code = 2
)

// Renderer codes.
const (
	CodeNoCurrentFrame     Code = 100
	CodeSwapchainError     Code = 101
	CodeInvalidTextureID   Code = 102
	CodeInvalidBindGroupID Code = 103
	CodeInvalidPipelineID  Code = 104
	CodeNoAdapter          Code = 105
	CodeNoDevice           Code = 106
	CodeInvalidTargetID    Code = 107
	CodeFeatureNotEnabled  Code = 108
	CodeAtlasFull          Code = 109
	CodeInvalidDimensions  Code = 110
	CodeFrameActive        Code = 111
	CodeClosed             Code = 112
	CodeInvalidConfig      Code = 113
	CodeInvalidShader      Code = 114
)

// Table codes.
const (
	CodeAlreadyInitialised Code = 200
	CodeNotInitialised     Code = 201
)

// CodeNoImgui is the historical name of CodeFeatureNotEnabled.
const CodeNoImgui = CodeFeatureNotEnabled

var codeNames = map[Code]string{
	CodeSuccess:            "Success",
	CodeNull:               "Null",
	CodePanic:              "Panic",
	CodeNoCurrentFrame:     "NoCurrentFrame",
	CodeSwapchainError:     "SwapchainError",
	CodeInvalidTextureID:   "InvalidTextureId",
	CodeInvalidBindGroupID: "InvalidBindGroupId",
	CodeInvalidPipelineID:  "InvalidPipelineId",
	CodeNoAdapter:          "NoAdapter",
	CodeNoDevice:           "NoDevice",
	CodeInvalidTargetID:    "InvalidTargetId",
	CodeFeatureNotEnabled:  "FeatureNotEnabled",
	CodeAtlasFull:          "AtlasFull",
	CodeInvalidDimensions:  "InvalidDimensions",
	CodeFrameActive:        "FrameActive",
	CodeClosed:             "Closed",
	CodeInvalidConfig:      "InvalidConfig",
	CodeInvalidShader:      "InvalidShader",
	CodeAlreadyInitialised: "KelpAlreadyInitialised",
	CodeNotInitialised:     "KelpNotInitialised",
}

// String returns the code's name.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Code(" + strconv.Itoa(int(c)) + ")"
}

// codeTable is checked in order; the first matching sentinel wins.
var codeTable = []struct {
	err  error
	code Code
}{
	{ErrNullHandle, CodeNull},
	{ErrAlreadyInitialised, CodeAlreadyInitialised},
	{ErrNotInitialised, CodeNotInitialised},
	{ErrLayout, CodeInvalidDimensions},
	{kelp.ErrNoCurrentFrame, CodeNoCurrentFrame},
	{kelp.ErrSwapchain, CodeSwapchainError},
	{kelp.ErrInvalidTextureID, CodeInvalidTextureID},
	{kelp.ErrInvalidBindGroupID, CodeInvalidBindGroupID},
	{kelp.ErrInvalidPipelineID, CodeInvalidPipelineID},
	{kelp.ErrNoAdapter, CodeNoAdapter},
	{kelp.ErrNoBackend, CodeNoAdapter},
	{kelp.ErrNoDevice, CodeNoDevice},
	{kelp.ErrInvalidTargetID, CodeInvalidTargetID},
	{kelp.ErrFeatureNotEnabled, CodeFeatureNotEnabled},
	{kelp.ErrAtlasFull, CodeAtlasFull},
	{kelp.ErrInvalidDimensions, CodeInvalidDimensions},
	{kelp.ErrFrameActive, CodeFrameActive},
	{kelp.ErrClosed, CodeClosed},
	{kelp.ErrInvalidConfig, CodeInvalidConfig},
	{kelp.ErrInvalidShader, CodeInvalidShader},
	{kelp.ErrShaderExists, CodeInvalidShader},
}

// CodeOf maps err to its Code. Nil is CodeSuccess. Errors outside the
// contract report CodePanic.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodePanic
}
