package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPadValidateTokens(t *testing.T) {
	pad := Pad{ReadID: "r", WriteID: "w", AdminID: "a"}
	assert.NoError(t, pad.ValidateTokens())

	missing := Pad{ReadID: "r", WriteID: "w"}
	assert.ErrorIs(t, missing.ValidateTokens(), ErrBadTokens)

	duplicate := Pad{ReadID: "r", WriteID: "r", AdminID: "a"}
	assert.ErrorIs(t, duplicate.ValidateTokens(), ErrBadTokens)
}

func TestPadStripTokens(t *testing.T) {
	pad := Pad{ID: "p", ReadID: "r", WriteID: "w", AdminID: "a"}

	read := pad.StripTokens(PermissionRead)
	assert.Equal(t, "r", read.ReadID)
	assert.Empty(t, read.WriteID)
	assert.Empty(t, read.AdminID)

	write := pad.StripTokens(PermissionWrite)
	assert.Equal(t, "w", write.WriteID)
	assert.Empty(t, write.AdminID)

	admin := pad.StripTokens(PermissionAdmin)
	assert.Equal(t, "a", admin.AdminID)

	// The original is untouched.
	assert.Equal(t, "a", pad.AdminID)
}

func TestMarkerValidate(t *testing.T) {
	ok := Marker{Lat: 52.5, Lon: 13.4}
	assert.NoError(t, ok.Validate())

	assert.ErrorIs(t, (&Marker{Lat: 91}).Validate(), ErrLatOutOfRange)
	assert.ErrorIs(t, (&Marker{Lon: -181}).Validate(), ErrLonOutOfRange)
}

func TestLineValidate(t *testing.T) {
	ok := Line{RoutePoints: []Point{{Lat: 52, Lon: 13}, {Lat: 53, Lon: 14}}}
	assert.NoError(t, ok.Validate())

	short := Line{RoutePoints: []Point{{Lat: 52, Lon: 13}}}
	assert.ErrorIs(t, short.Validate(), ErrTooFewRoutePoints)

	badPoint := Line{RoutePoints: []Point{{Lat: 52, Lon: 13}, {Lat: 95, Lon: 14}}}
	assert.ErrorIs(t, badPoint.Validate(), ErrLatOutOfRange)
}

func TestTypeValidate(t *testing.T) {
	ok := Type{Fields: []Field{{Name: "status"}, {Name: "notes"}}}
	assert.NoError(t, ok.Validate())

	dup := Type{Fields: []Field{{Name: "status"}, {Name: "status"}}}
	assert.ErrorIs(t, dup.Validate(), ErrDuplicateField)
}
