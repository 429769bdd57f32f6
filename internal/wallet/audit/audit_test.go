package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/internal/wallet/repo"
	"gopherwallet.com/internal/wallet/testkit"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subj string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subj)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestDBSink_StripsSecrets(t *testing.T) {
	db := testkit.NewDB(t)
	sink := NewDBSink(repo.New(db))
	uid := int64(7)

	err := sink.Record(context.Background(), domain.AuditEntry{
		UserID: &uid,
		Action: domain.AuditPrivateKeyViewed,
		Metadata: map[string]any{
			"wallet_id":   "w-1",
			"private_key": "deadbeef",
			"Password":    "hunter2",
		},
	})
	require.NoError(t, err)

	var rows []domain.AuditLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.AuditPrivateKeyViewed, rows[0].Action)
	assert.Equal(t, uid, *rows[0].UserID)

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(rows[0].Metadata), &meta))
	assert.Equal(t, map[string]any{"wallet_id": "w-1"}, meta)
	assert.False(t, rows[0].CreatedAt.IsZero())
}

func TestNatsSink_Subject(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNatsSink(pub, "")
	require.NoError(t, sink.Record(context.Background(), domain.AuditEntry{
		Action:   domain.AuditTransferConfirmed,
		Metadata: map[string]any{"tx_hash": "0xabc", "mnemonic": "a b c"},
	}))
	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "wallet.audit.transfer.confirmed", pub.subjects[0])

	var got domain.AuditEntry
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, "0xabc", got.Metadata["tx_hash"])
	_, leaked := got.Metadata["mnemonic"]
	assert.False(t, leaked)
}

func TestMulti_SwallowsFailures(t *testing.T) {
	ok := &fakePublisher{}
	broken := &fakePublisher{err: errors.New("nats: connection closed")}
	m := Multi{NewNatsSink(broken, "x"), nil, NewNatsSink(ok, "y"), Discard{}}

	err := m.Record(context.Background(), domain.AuditEntry{Action: domain.AuditWalletCreated})
	assert.NoError(t, err)
	assert.Equal(t, []string{"y.wallet.created"}, ok.subjects)
}
