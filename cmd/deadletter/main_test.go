package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"summit-webhook/internal/client"
	"summit-webhook/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := client.InitDBClient("sqlite:"+filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestRun_ListAndResolve(t *testing.T) {
	db := newTestDB(t)
	failure := &model.FulfillmentFailure{
		Provider:              "dodo",
		ProviderTransactionID: "pay_1",
		Email:                 "a@x.com",
		Stage:                 "apply",
		Error:                 "timeout",
	}
	require.NoError(t, db.Create(failure).Error)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), db, []string{"list", "-limit", "10"}, &out))

	var listed model.FulfillmentFailure
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	assert.Equal(t, failure.ID, listed.ID)
	assert.Equal(t, "pay_1", listed.ProviderTransactionID)

	out.Reset()
	require.NoError(t, run(context.Background(), db, []string{"resolve", failure.ID}, &out))
	assert.Equal(t, "resolved "+failure.ID+"\n", out.String())

	out.Reset()
	require.NoError(t, run(context.Background(), db, []string{"list"}, &out))
	assert.Empty(t, out.String())
}

func TestRun_History(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.WebhookEvent{
		ID:                    "evt-1",
		Provider:              "dodo",
		ProviderTransactionID: "pay_1",
		SignatureStatus:       model.SignatureVerified,
		PayloadJSON:           `{}`,
		Outcome:               "fulfilled",
	}).Error)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), db, []string{"history", "pay_1"}, &out))
	assert.Contains(t, out.String(), `"ID":"evt-1"`)
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestRun_Errors(t *testing.T) {
	db := newTestDB(t)
	var out bytes.Buffer

	assert.Error(t, run(context.Background(), db, nil, &out))
	assert.Error(t, run(context.Background(), db, []string{"history"}, &out))
	assert.Error(t, run(context.Background(), db, []string{"list", "-bogus"}, &out))

	err := run(context.Background(), db, []string{"resolve", "missing"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no failure with id missing")

	err = run(context.Background(), db, []string{"replay"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "replay"`)
}
