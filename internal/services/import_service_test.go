package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recur/internal/core"
	"recur/internal/sheets/file"
)

type staticSource struct {
	records []core.Record
	err     error
}

func (s staticSource) ReadRecords(context.Context) ([]core.Record, error) {
	return s.records, s.err
}

func TestImportService_ImportCSV(t *testing.T) {
	csv := "header\nsecond header\nname,date,amount,trans_id,user_id,is_recurring\n" +
		"Netflix,2018-01-01,9.99,a,1,false\n" +
		"Netflix,2018-01-31,9.99,b,1,\n"
	records, err := file.ReadCSV(context.Background(), strings.NewReader(csv), 3)
	require.NoError(t, err)

	store := newFakeStore()
	svc := NewImportService(staticSource{records: records}, NewIngestionService(store, nil, nil))

	res, err := svc.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Len(t, store.rows, 2)
}

func TestImportService_InvalidRowRejectsImport(t *testing.T) {
	csv := "Netflix,2018-01-01,9.99,a,1\nNetflix,not a date,9.99,b,1\n"
	records, err := file.ReadCSV(context.Background(), strings.NewReader(csv), 0)
	require.NoError(t, err)

	store := newFakeStore()
	svc := NewImportService(staticSource{records: records}, NewIngestionService(store, nil, nil))

	_, err = svc.Import(context.Background())
	var batchErr *core.BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, []int{1}, batchErr.Positions())
	assert.Empty(t, store.rows)
}

func TestImportService_SourceFailure(t *testing.T) {
	svc := NewImportService(staticSource{err: errBoom}, NewIngestionService(newFakeStore(), nil, nil))

	_, err := svc.Import(context.Background())
	assert.ErrorIs(t, err, errBoom)
}
