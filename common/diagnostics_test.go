package common

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{
		Severity:   SeverityError,
		Descriptor: "TerrainForward",
		Stage:      StagePtr(StageVertex),
		Message:    "expected ';'",
	}
	assert.Equal(t, "error [TerrainForward/vertex]: expected ';'", d.String())

	linkDiag := Diagnostic{Severity: SeverityError, Descriptor: "TerrainForward", Message: "entry point missing"}
	assert.Equal(t, "error [TerrainForward]: entry point missing", linkDiag.String())

	bare := Diagnostic{Severity: SeverityInfo, Message: "published"}
	assert.Equal(t, "info: published", bare.String())
}

func TestBuildErrorAggregates(t *testing.T) {
	err := NewBuildError(ErrorKindCompileFailure, "TerrainForward", []Diagnostic{
		{Severity: SeverityError, Descriptor: "TerrainForward", Stage: StagePtr(StageVertex), Message: "bad token"},
		{Severity: SeverityError, Descriptor: "TerrainForward", Stage: StagePtr(StageFragment), Message: "unknown ident"},
	})

	msg := err.Error()
	assert.Contains(t, msg, "compile-failure")
	assert.Contains(t, msg, "vertex")
	assert.Contains(t, msg, "fragment")

	empty := NewBuildError(ErrorKindLinkFailure, "Skin", nil)
	assert.Equal(t, "Skin: link-failure", empty.Error())
}

func TestDiagnosticEmitUsesInstalledLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	Diagnostic{
		Severity:   SeverityWarning,
		Descriptor: "Skin",
		Stage:      StagePtr(StageCompute),
		Message:    "binding index mismatch",
	}.Emit()

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "binding index mismatch")
	assert.Contains(t, out, "descriptor=Skin")
	assert.Contains(t, out, "stage=compute")

	// The silent default must swallow output again after reset.
	SetLogger(nil)
	buf.Reset()
	Diagnostic{Severity: SeverityInfo, Message: "ignored"}.Emit()
	assert.Empty(t, buf.String())
}
