package ingest

import (
	"testing"

	"github.com/errdeck/errdeck/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frames() []models.Frame {
	return []models.Frame{
		{File: "app/models/user.rb", Line: 42, Method: "find_account"},
		{File: "app/controllers/users_controller.rb", Line: 9, Method: "show"},
	}
}

func TestBacktraceFingerprint_Deterministic(t *testing.T) {
	fp1 := BacktraceFingerprint(frames())
	fp2 := BacktraceFingerprint(frames())
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 40) // sha-1 hex
}

func TestBacktraceFingerprint_SensitiveToContent(t *testing.T) {
	other := frames()
	other[0].Line = 43
	assert.NotEqual(t, BacktraceFingerprint(frames()), BacktraceFingerprint(other))
}

func noticeFixture() *models.Notice {
	return &models.Notice{
		ErrorClass: "ActiveRecord::RecordNotFound",
		Message:    "Couldn't find User with id=42",
		Request:    map[string]any{"component": "users", "action": "show"},
		ServerEnvironment: map[string]any{
			"environment-name": "production",
		},
	}
}

func TestNoticeFingerprint_IdenticalInputs(t *testing.T) {
	bt := &models.Backtrace{Frames: frames()}

	fp1, err := NoticeFingerprint(noticeFixture(), bt)
	require.NoError(t, err)
	fp2, err := NoticeFingerprint(noticeFixture(), bt)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 32) // md5 hex
}

func TestNoticeFingerprint_NormalizesVariableMessageParts(t *testing.T) {
	a := noticeFixture()
	b := noticeFixture()
	a.Message = "Couldn't find User with id 42"
	b.Message = "Couldn't find User with id 977"

	fpA, err := NoticeFingerprint(a, nil)
	require.NoError(t, err)
	fpB, err := NoticeFingerprint(b, nil)
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB, "messages differing only in variable parts must fingerprint identically")
}

func TestNoticeFingerprint_DistinguishesErrorClass(t *testing.T) {
	a := noticeFixture()
	b := noticeFixture()
	b.ErrorClass = "NoMethodError"

	fpA, err := NoticeFingerprint(a, nil)
	require.NoError(t, err)
	fpB, err := NoticeFingerprint(b, nil)
	require.NoError(t, err)

	assert.NotEqual(t, fpA, fpB)
}

func TestNoticeFingerprint_FirstFrameMatters(t *testing.T) {
	shifted := frames()
	shifted[0], shifted[1] = shifted[1], shifted[0]

	fpA, err := NoticeFingerprint(noticeFixture(), &models.Backtrace{Frames: frames()})
	require.NoError(t, err)
	fpB, err := NoticeFingerprint(noticeFixture(), &models.Backtrace{Frames: shifted})
	require.NoError(t, err)

	assert.NotEqual(t, fpA, fpB)
}

func TestNoticeFingerprint_EmptyBacktraceIsKindTaggedError(t *testing.T) {
	_, err := NoticeFingerprint(noticeFixture(), &models.Backtrace{})
	require.Error(t, err)

	var fpErr *FingerprintError
	assert.ErrorAs(t, err, &fpErr)
}

func TestNoticeFingerprint_MissingOptionalFieldsAreStable(t *testing.T) {
	bare := &models.Notice{ErrorClass: "RuntimeError"}
	fp1, err := NoticeFingerprint(bare, nil)
	require.NoError(t, err)
	fp2, err := NoticeFingerprint(&models.Notice{ErrorClass: "RuntimeError"}, nil)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestSanitizeMap(t *testing.T) {
	in := map[string]any{
		"plain":     "ok",
		"dotted.key": 1,
		"$operator": "v",
		"nested": map[string]any{
			"inner.dotted": []any{map[string]any{"$deep": true}},
		},
	}

	got := SanitizeMap(in)

	assert.Equal(t, "ok", got["plain"])
	assert.Contains(t, got, "dotted&#46;key")
	assert.Contains(t, got, "&#36;operator")
	nested := got["nested"].(map[string]any)
	assert.Contains(t, nested, "inner&#46;dotted")
	list := nested["inner&#46;dotted"].([]any)
	assert.Contains(t, list[0].(map[string]any), "&#36;deep")

	// original untouched
	assert.Contains(t, in, "dotted.key")
	assert.Nil(t, SanitizeMap(nil))
}
