package cookies

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ferrors "feedcrawler/pkg/errors"
	"feedcrawler/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mixedBundle = `# exported cookies
.facebook.com	TRUE	/	True	1767225600	c_user	100012345

.facebook.com	TRUE	/	False	0	xs	42%3Aabc
this line has no pair at all
datr=XyZ123; path=/; domain=.facebook.com
.facebook.com	TRUE	/	true	not-a-number	fr	0abc
`

func TestParseBundleMixedLines(t *testing.T) {
	log := logger.NewTestLogger()
	bundle, err := ParseBundle(strings.NewReader(mixedBundle), "facebook.com", log)
	require.NoError(t, err)

	require.Len(t, bundle.Records, 3)
	require.Len(t, bundle.Skipped, 2)

	cUser := bundle.Records[0]
	assert.Equal(t, "c_user", cUser.Name)
	assert.Equal(t, "100012345", cUser.Value)
	assert.Equal(t, ".facebook.com", cUser.Domain)
	assert.True(t, cUser.Secure)
	require.NotNil(t, cUser.Expiry)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), *cUser.Expiry)

	xs := bundle.Records[1]
	assert.False(t, xs.Secure)
	assert.Nil(t, xs.Expiry)

	datr := bundle.Records[2]
	assert.Equal(t, "datr", datr.Name)
	assert.Equal(t, "XyZ123", datr.Value)
	assert.Equal(t, ".facebook.com", datr.Domain)
	assert.Equal(t, "/", datr.Path)

	assert.Equal(t, 5, bundle.Skipped[0].Line)
	assert.Equal(t, 7, bundle.Skipped[1].Line)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 2)
}

func TestParseBundleThreeGoodTwoMalformed(t *testing.T) {
	input := strings.Join([]string{
		".x.com\tTRUE\t/\tTRUE\t0\ta\t1",
		"garbage",
		"b=2",
		"\t\t\t\t\t\t",
		".x.com\tTRUE\t/\tFALSE\t1700000000\tc\t3",
	}, "\n")

	bundle, err := ParseBundle(strings.NewReader(input), "x.com", nil)
	require.NoError(t, err)
	assert.Len(t, bundle.Records, 3)
	assert.Len(t, bundle.Skipped, 2)
}

func TestParseBundleUsesFirstPairOnly(t *testing.T) {
	bundle, err := ParseBundle(strings.NewReader("sb=one; wd=two"), "x.com", nil)
	require.NoError(t, err)
	require.Len(t, bundle.Records, 1)
	assert.Equal(t, "sb", bundle.Records[0].Name)
	assert.Equal(t, "one", bundle.Records[0].Value)
}

func TestParseBundleSecureFlag(t *testing.T) {
	for _, flag := range []string{"TRUE", "true", "True", "1"} {
		bundle, err := ParseBundle(strings.NewReader(".x\tTRUE\t/\t"+flag+"\t0\tn\tv"), "x", nil)
		require.NoError(t, err)
		require.Len(t, bundle.Records, 1)
		assert.True(t, bundle.Records[0].Secure, flag)
	}
}

func TestLoadBundleErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadBundle(filepath.Join(dir, "missing.txt"), "x.com", nil)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeConfiguration))

	_, err = LoadBundle(dir, "x.com", nil)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeConfiguration))

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n\nnot a cookie\n"), 0600))
	_, err = LoadBundle(empty, "x.com", nil)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeConfiguration))
}

func TestWriteBundleRoundTrip(t *testing.T) {
	exp := time.Unix(1800000000, 0).UTC()
	records := []Record{
		{Name: "c_user", Value: "1", Domain: ".facebook.com", Path: "/", Secure: true, Expiry: &exp},
		{Name: "xs", Value: "abc", Domain: ".facebook.com", Path: "/"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, records))
	assert.Equal(t, ".facebook.com\tTRUE\t/\ttrue\t1800000000\tc_user\t1\n", strings.SplitAfter(buf.String(), "\n")[0])

	bundle, err := ParseBundle(&buf, "facebook.com", nil)
	require.NoError(t, err)
	assert.Equal(t, records, bundle.Records)
}

func TestSaveBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, SaveBundle(path, []Record{{Name: "xs", Value: "1", Domain: ".x.com"}}))

	bundle, err := LoadBundle(path, "x.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "/", bundle.Records[0].Path)
}

func TestMissingEssential(t *testing.T) {
	assert.Equal(t, []string{"c_user", "xs"}, MissingEssential(nil))
	assert.Equal(t, []string{"xs"}, MissingEssential([]Record{{Name: "c_user"}}))
	assert.Empty(t, MissingEssential([]Record{{Name: "xs"}, {Name: "c_user"}}))
}
