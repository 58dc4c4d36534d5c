package ddserror

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindRoundTrip(t *testing.T) {
	for _, code := range []Code{
		CodeBadParameter,
		CodeOutOfResources,
		CodeTimeout,
		CodeNoData,
		CodeAlreadyDeleted,
		CodeNotEnabled,
		CodeImmutablePolicy,
		CodeInconsistentPolicy,
		CodeIllegalOperation,
		CodePreconditionNotMet,
	} {
		err := New(code, "detail")
		assert.Equal(t, code, Kind(err))
		assert.True(t, Is(err, code))
	}
}

func TestKindNil(t *testing.T) {
	assert.Equal(t, CodeOK, Kind(nil))
}

func TestKindForeignError(t *testing.T) {
	assert.Equal(t, CodeError, Kind(assert.AnError))
}

func TestNewfFormats(t *testing.T) {
	err := Newf(CodeBadParameter, "field %q out of range", "max_samples")
	assert.Contains(t, err.Error(), "max_samples")
	assert.Equal(t, CodeBadParameter, Kind(err))
}
