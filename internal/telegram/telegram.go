// Package telegram is the only place in this module that imports
// github.com/gotd/td. It implements the upstream.Session,
// upstream.MetadataFetcher, and upstream.Opener interfaces the streaming
// core depends on, so the core itself never names the platform library
// (spec.md §9).
package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/streambridge/fsb/internal/upstream"
)

// maxOutstandingChunkReads bounds the number of concurrent upload.getFile
// calls one session will issue at a time (spec.md §4.2): a small per-session
// concurrency cap, with callers blocking on the semaphore as cooperative
// back-pressure rather than piling RPCs onto one connection.
const maxOutstandingChunkReads = 8

// Session wraps one *tg.Client bound to a single data center. It is the
// concrete type behind upstream.Session.
type Session struct {
	api   *tg.Client
	dc    int
	state atomic.Int32 // holds upstream.SessionState
	log   *zap.Logger

	chunkSem chan struct{}
}

// NewSession wraps an already-authenticated *tg.Client for data center dc.
func NewSession(api *tg.Client, dc int, log *zap.Logger) *Session {
	s := &Session{api: api, dc: dc, log: log.Named("telegram.session"), chunkSem: make(chan struct{}, maxOutstandingChunkReads)}
	s.state.Store(int32(upstream.StateReady))
	return s
}

func (s *Session) State() upstream.SessionState { return upstream.SessionState(s.state.Load()) }
func (s *Session) DataCenterID() int            { return s.dc }

func (s *Session) Close() error {
	s.state.Store(int32(upstream.StateClosed))
	return nil
}

// FetchMetadata resolves messageID to a file locator by asking Telegram for
// the message and pulling the document out of its media. The document's
// file_reference travels with the returned Locator so FetchChunk can be
// served by any session for its data center.
func (s *Session) FetchMetadata(ctx context.Context, messageID int64) (upstream.Locator, error) {
	res, err := s.api.MessagesGetMessages(ctx, []tg.InputMessageClass{
		&tg.InputMessageID{ID: int(messageID)},
	})
	if err != nil {
		return upstream.Locator{}, classifyError(err)
	}

	msg, ok := extractMessage(res)
	if !ok {
		return upstream.Locator{}, upstream.ErrNotFound
	}

	doc, fileName, err := extractDocument(msg)
	if err != nil {
		return upstream.Locator{}, err
	}

	loc := upstream.Locator{
		DataCenterID:  int(doc.DCID),
		VolumeID:      messageID,
		LocalID:       doc.ID,
		AccessHash:    doc.AccessHash,
		Size:          doc.Size,
		MimeType:      doc.MimeType,
		FileName:      fileName,
		FileReference: doc.FileReference,
		MessageDate:   time.Unix(int64(msg.Date), 0),
	}

	return loc, nil
}

// FetchChunk issues one upload.getFile RPC for the chunk at [offset, offset+length).
// The input location is built directly from loc (spec.md §4.1's locator
// tuple plus its file_reference), so any session for loc.DataCenterID can
// serve the read — not only the session that performed the metadata fetch.
func (s *Session) FetchChunk(ctx context.Context, loc upstream.Locator, offset, length int64) ([]byte, error) {
	select {
	case s.chunkSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.chunkSem }()

	res, err := s.api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
		Location: &tg.InputDocumentFileLocation{
			ID:            loc.LocalID,
			AccessHash:    loc.AccessHash,
			FileReference: loc.FileReference,
		},
		Offset: offset,
		Limit:  int(length),
	})
	if err != nil {
		return nil, classifyError(err)
	}

	file, ok := res.(*tg.UploadFile)
	if !ok {
		return nil, fmt.Errorf("telegram: unexpected upload response type %T", res)
	}
	return file.Bytes, nil
}

// classifyError maps gotd/td RPC errors onto the closed error-kind set the
// core understands.
func classifyError(err error) error {
	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) {
		switch {
		case rpcErr.Type == "FILE_MIGRATE":
			return &upstream.MigrationError{RequiredDC: rpcErr.Argument}
		case rpcErr.Message == "FILE_REFERENCE_EXPIRED":
			return upstream.ErrReferenceExpired
		case rpcErr.Message == "MSG_ID_INVALID", rpcErr.Message == "CHANNEL_INVALID":
			return upstream.ErrNotFound
		}
	}
	return fmt.Errorf("%w: %v", upstream.ErrTransient, err)
}

func extractMessage(res tg.MessagesMessagesClass) (*tg.Message, bool) {
	var messages []tg.MessageClass
	switch m := res.(type) {
	case *tg.MessagesMessages:
		messages = m.Messages
	case *tg.MessagesMessagesSlice:
		messages = m.Messages
	case *tg.MessagesChannelMessages:
		messages = m.Messages
	default:
		return nil, false
	}
	for _, mc := range messages {
		if msg, ok := mc.(*tg.Message); ok {
			return msg, true
		}
	}
	return nil, false
}

func extractDocument(msg *tg.Message) (*tg.Document, string, error) {
	media, ok := msg.GetMedia()
	if !ok {
		return nil, "", upstream.ErrNotFound
	}
	mediaDoc, ok := media.(*tg.MessageMediaDocument)
	if !ok {
		return nil, "", upstream.ErrNotFound
	}
	docClass, ok := mediaDoc.GetDocument()
	if !ok {
		return nil, "", upstream.ErrNotFound
	}
	doc, ok := docClass.(*tg.Document)
	if !ok {
		return nil, "", upstream.ErrNotFound
	}

	fileName := ""
	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			fileName = fn.FileName
		}
	}
	return doc, fileName, nil
}
