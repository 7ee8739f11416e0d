package firestore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"spend/internal/core"
)

func TestDocumentRoundTrip(t *testing.T) {
	occurred := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	in := core.Record{
		ID:            "r1",
		OwnerID:       "u1",
		Amount:        core.Money{Cents: 4250},
		Category:      "Groceries",
		Note:          "weekly shop",
		AttachmentRef: "gs://receipts/abc.jpg",
		OccurredAt:    occurred,
		SyncState:     core.Unsynced,
		CreatedAt:     occurred.UnixMilli(),
		UpdatedAt:     occurred.UnixMilli(),
	}

	out := toRecord(in.ID, toDocument(in))

	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.OwnerID, out.OwnerID)
	assert.Equal(t, in.Amount, out.Amount)
	assert.Equal(t, in.Category, out.Category)
	assert.Equal(t, in.Note, out.Note)
	assert.Equal(t, in.AttachmentRef, out.AttachmentRef)
	assert.True(t, in.OccurredAt.Equal(out.OccurredAt))
	assert.Equal(t, in.CreatedAt, out.CreatedAt)
	assert.Equal(t, in.UpdatedAt, out.UpdatedAt)
	assert.Equal(t, core.Synced, out.SyncState, "pulled copies arrive acknowledged")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), core.ErrRemoteTransient},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), core.ErrRemoteTransient},
		{"throttled", status.Error(codes.ResourceExhausted, "quota"), core.ErrRemoteTransient},
		{"plain error", errors.New("boom"), core.ErrRemoteTransient},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad"), core.ErrRemoteRejected},
		{"permission denied", status.Error(codes.PermissionDenied, "no"), core.ErrRemoteRejected},
		{"unauthenticated", status.Error(codes.Unauthenticated, "who"), core.ErrRemoteRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("push", tc.err), tc.want)
		})
	}
}
