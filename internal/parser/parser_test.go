package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_EmbeddedInArbitraryText(t *testing.T) {
	tests := []struct {
		name string
		body string
		key  string
		want string
	}{
		{"wiki json", `{"currentStatus":"done","fileName":"temp/filestore/8dd92113"}`, "fileName", "temp/filestore/8dd92113"},
		{"tracker json", `{"status":"Success","result":"export/download/?fileId=8fdc","progress":100}`, "result", "export/download/?fileId=8fdc"},
		{"prefix noise", `<html>garbage "fileName":"a.zip" trailing`, "fileName", "a.zip"},
		{"spaces around colon", `xx "result" :  "f.zip", yy`, "result", "f.zip"},
		{"truncated json", `{"fileName":"b.zip","size":`, "fileName", "b.zip"},
		{"escaped quote", `noise "fileName":"a\"b.zip" end`, "fileName", `a"b.zip`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := String(tt.body, tt.key)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString_Absent(t *testing.T) {
	for _, body := range []string{"", "not json at all", `{"other":"x"}`, `{"fileName":null}`, `"fileNameX":"y"`} {
		_, ok := String(body, "fileName")
		assert.False(t, ok, "body %q", body)
	}
}

func TestString_EmptyQuotedIsFound(t *testing.T) {
	got, ok := String(`prefix "fileName":"" suffix`, "fileName")
	assert.True(t, ok)
	assert.Equal(t, "", got)
}

func TestInt(t *testing.T) {
	n, ok := Int(`{"progress":42,"message":"x"}`, "progress")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	n, ok = Int(`junk "progress":7, "message":"x"`, "progress")
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = Int(`{"progress":"soon"}`, "progress")
	assert.False(t, ok)
}

func TestPercent_FallsBackToAlternative(t *testing.T) {
	n, ok := Percent(`{"alternativePercentage":"45%"}`, "percentage", "alternativePercentage")
	assert.True(t, ok)
	assert.Equal(t, 45, n)

	n, ok = Percent(`{"percentage":"130"}`, "percentage")
	assert.True(t, ok)
	assert.Equal(t, 100, n)

	_, ok = Percent(`{}`, "percentage", "alternativePercentage")
	assert.False(t, ok)
}

func TestPercentAfter(t *testing.T) {
	body := `{"currentStatus":"Estimated progress: 37","alternativePercentage":"10%"}`
	n, ok := PercentAfter(body, "Estimated progress: ")
	assert.True(t, ok)
	assert.Equal(t, 37, n)

	_, ok = PercentAfter(`{"currentStatus":"Packing"}`, "Estimated progress: ")
	assert.False(t, ok)
}

func TestHasError(t *testing.T) {
	assert.True(t, HasError(`{"error":"true"}`))
	assert.True(t, HasError(`An ERROR occurred`))
	assert.False(t, HasError(`{"progress":10}`))
}

func TestFieldPattern_CompiledOnce(t *testing.T) {
	first := fieldPattern("fileName")
	assert.Same(t, first, fieldPattern("fileName"))
	assert.NotSame(t, first, fieldPattern("result"))

	v, ok := String(`junk "fileName": "a.zip" junk`, "fileName")
	assert.True(t, ok)
	assert.Equal(t, "a.zip", v)
}
