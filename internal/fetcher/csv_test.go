package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAll_TabDelimited(t *testing.T) {
	input := "JPT_KOD_JE\tXCoord\tYCoord\n0201011\t345000.5\t510000\n0201022\t346000\t511000.25\n"
	recs, err := ReadAll(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: '\t'})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "0201011", recs[0].Get("JPT_KOD_JE"))
	assert.Equal(t, "345000.5", recs[0].Get("XCoord"))
	assert.Equal(t, "511000.25", recs[1].Get("YCoord"))
	assert.Equal(t, 2, recs[0].Line)
	assert.Equal(t, 3, recs[1].Line)
}

func TestReadAll_StripsBOM(t *testing.T) {
	input := "\ufeffname,age\nalice,30\n"
	recs, err := ReadAll(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "alice", recs[0].Get("name"))
}

func TestReadAll_ShortAndLongRows(t *testing.T) {
	input := "a,b,c\n1\n1,2,3,4\n"
	recs, err := ReadAll(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, map[string]string{"a": "1", "b": "", "c": ""}, recs[0].Fields)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, recs[1].Fields)
}

func TestReadAll_TrimSpaceAndComment(t *testing.T) {
	input := "# units\n a , b \n 1 , 2 \n"
	recs, err := ReadAll(context.Background(), strings.NewReader(input), CSVOptions{
		TrimSpace: true,
		Comment:   '#',
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].Get("b"))
}

func TestReadAll_HeaderOnlyAndEmpty(t *testing.T) {
	recs, err := ReadAll(context.Background(), strings.NewReader("a\tb\n"), CSVOptions{Delimiter: '\t'})
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = ReadAll(context.Background(), strings.NewReader(""), CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadAll_MalformedQuotes(t *testing.T) {
	input := "a,b\n1,\"x\"y\"\n"
	_, err := ReadAll(context.Background(), strings.NewReader(input), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")

	recs, err := ReadAll(context.Background(), strings.NewReader(input), CSVOptions{LazyQuotes: true})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk gone")
}

func TestReadAll_ReaderError(t *testing.T) {
	_, err := ReadAll(context.Background(), failingReader{}, CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a,b\n")
	for range 10000 {
		sb.WriteString("1,2\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	count := 0
	for range rowCh {
		count++
		if count == 5 {
			cancel()
			break
		}
	}
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
