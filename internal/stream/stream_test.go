package stream

import (
	"bytes"
	stderrors "errors"
	"io"
	"testing"

	"lvcs/internal/errors"
	"lvcs/internal/paths"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitivesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteInteger(-7))
	require.NoError(t, w.WriteString("héllo"))
	require.NoError(t, w.WriteString(""))
	require.NoError(t, w.WritePath(paths.Parse("src/a.txt")))
	require.NoError(t, w.WriteIdPath(paths.NewIdPath(1, 2)))

	r := NewReader(&buf)
	i, err := r.ReadInteger()
	require.NoError(t, err)
	assert.Equal(t, -7, i)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)

	s, err = r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "", s)

	p, err := r.ReadPath()
	require.NoError(t, err)
	assert.Equal(t, "src/a.txt", p.String())

	ip, err := r.ReadIdPath()
	require.NoError(t, err)
	assert.True(t, ip.Equal(paths.NewIdPath(1, 2)))

	_, err = r.ReadInteger()
	assert.True(t, stderrors.Is(err, errors.ErrMalformed))
}

func TestIntegersAreFixedWidthBigEndian(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteInteger(258))
	assert.Equal(t, []byte{0, 0, 1, 2}, buf.Bytes())

	buf.Reset()
	require.NoError(t, NewWriter(&buf).WriteString("ab"))
	assert.Equal(t, []byte{0, 0, 0, 2, 'a', 'b'}, buf.Bytes())
}

func TestTruncatedString(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 0, 0, 5, 'a', 'b'}))
	_, err := r.ReadString()
	assert.True(t, stderrors.Is(err, errors.ErrMalformed))
}

func TestNegativeLengthsAreMalformed(t *testing.T) {
	neg := []byte{0xff, 0xff, 0xff, 0xff}

	_, err := NewReader(bytes.NewReader(neg)).ReadString()
	assert.True(t, stderrors.Is(err, errors.ErrMalformed))

	_, err = NewReader(bytes.NewReader(neg)).ReadPath()
	assert.True(t, stderrors.Is(err, errors.ErrMalformed))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestWriterErrorsStick(t *testing.T) {
	w := NewWriter(failingWriter{})

	err := w.WriteInteger(1)
	assert.True(t, stderrors.Is(err, errors.ErrIO))
	assert.Equal(t, err, w.WriteString("x"))
	assert.Equal(t, err, w.Err())
}

func TestIntegerOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(&buf).WriteInteger(1 << 40)
	assert.True(t, stderrors.Is(err, errors.ErrStructural))
	assert.Zero(t, buf.Len())
}
