package ice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func idWithByte(b byte) [stunTransactionIDSize]byte {
	var id [stunTransactionIDSize]byte
	id[0] = b
	return id
}

func TestTransactionTableTakeRemovesEntry(t *testing.T) {
	tbl := &transactionTable{}
	pair := &CandidatePair{}
	tbl.add(outboundTransaction{transactionID: idWithByte(1), pair: pair, startedAt: time.Now()})

	tr, _, ok := tbl.take(idWithByte(1))
	require.True(t, ok)
	require.Equal(t, pair, tr.pair)

	_, _, ok = tbl.take(idWithByte(1))
	require.False(t, ok, "a transaction can only be taken once")
}

func TestTransactionTableTakeUnknownIDFails(t *testing.T) {
	tbl := &transactionTable{}
	tbl.add(outboundTransaction{transactionID: idWithByte(1), startedAt: time.Now()})

	_, _, ok := tbl.take(idWithByte(2))
	require.False(t, ok)
	require.Len(t, tbl.pending, 1, "taking an unknown id must not mutate the table")
}

func TestTransactionTableExpireBeforeDropsOldEntries(t *testing.T) {
	tbl := &transactionTable{}
	old := outboundTransaction{transactionID: idWithByte(1), startedAt: time.Now().Add(-time.Minute)}
	fresh := outboundTransaction{transactionID: idWithByte(2), startedAt: time.Now()}
	tbl.add(old)
	tbl.add(fresh)

	tbl.expireBefore(time.Now().Add(-time.Second))

	require.Len(t, tbl.pending, 1)
	require.Equal(t, idWithByte(2), tbl.pending[0].transactionID)
}

func TestTransactionTableReset(t *testing.T) {
	tbl := &transactionTable{}
	tbl.add(outboundTransaction{transactionID: idWithByte(1), startedAt: time.Now()})
	tbl.reset()
	require.Empty(t, tbl.pending)
}
