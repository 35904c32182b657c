package ingest

import (
	"context"

	"github.com/rickgao/vault-relay/internal/model"
)

// Handler receives fill batches in arrival order.
type Handler interface {
	HandleFills(ctx context.Context, fills []model.FillEvent) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(context.Context, []model.FillEvent) error

func (f HandlerFunc) HandleFills(ctx context.Context, fills []model.FillEvent) error {
	return f(ctx, fills)
}

// Stats contains runtime statistics.
type Stats struct {
	MessagesReceived int64
	FillReports      int64
	FillsIngested    int64
	ParseErrors      int64
	Discarded        int64
}

// userEventsData is the payload of a "user" channel frame.
type userEventsData struct {
	User  string     `json:"user,omitempty"`
	Fills []wireFill `json:"fills"`
}

// wireFill is a single fill as the venue sends it.
type wireFill struct {
	Coin      string `json:"coin"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	Side      string `json:"side"`
	Time      int64  `json:"time"`
	Hash      string `json:"hash"`
	Oid       int64  `json:"oid"`
	Tid       int64  `json:"tid"`
	Dir       string `json:"dir"`
	ClosedPnl string `json:"closedPnl"`
	Fee       string `json:"fee"`
}
