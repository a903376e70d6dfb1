package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/editor"
	"github.com/mhbvr/collage/pipeline"
	pb "github.com/mhbvr/collage/proto"
	"github.com/mhbvr/collage/uistate"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/orca"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CollageServer serves one shared editor to all clients.
type CollageServer struct {
	editor  *editor.Editor
	reader  collage.PhotoReader
	decodes *semaphore.Weighted
}

var _ pb.CollageEditorServer = (*CollageServer)(nil)

// NewCollageServer serves ed and lists saved collages from reader.
// maxConcurrentDecodes bounds image decoding across streams, 0 means unlimited.
func NewCollageServer(ed *editor.Editor, reader collage.PhotoReader, maxConcurrentDecodes int) *CollageServer {
	s := &CollageServer{
		editor: ed,
		reader: reader,
	}
	if maxConcurrentDecodes > 0 {
		s.decodes = semaphore.NewWeighted(int64(maxConcurrentDecodes))
	}
	return s
}

func (s *CollageServer) decode(ctx context.Context, name string, data []byte) (*collage.Photo, error) {
	if s.decodes != nil {
		if err := s.decodes.Acquire(ctx, 1); err != nil {
			return nil, status.FromContextError(err).Err()
		}
		defer s.decodes.Release(1)
	}
	photo, err := collage.DecodePhoto(name, data)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to decode %s: %v", name, err)
	}
	return photo, nil
}

// AddPhotos runs one selection session. The end of the client stream
// completes the session.
func (s *CollageServer) AddPhotos(stream pb.CollageEditor_AddPhotosServer) error {
	ctx := stream.Context()
	session, err := s.editor.OpenSession(ctx)
	if err != nil {
		return toStatus(err)
	}
	completed := false
	defer func() {
		if completed {
			return
		}
		if _, err := session.Complete(context.WithoutCancel(ctx)); err != nil {
			log.Printf("Failed to complete session %s: %v", session.ID(), err)
		}
	}()

	received := 0
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		received++

		photo, err := s.decode(ctx, fmt.Sprintf("%s/%d", session.ID(), received), msg.GetValue())
		if err != nil {
			return err
		}
		if _, err := session.Add(ctx, photo); err != nil {
			return toStatus(err)
		}
	}

	stats, err := session.Complete(ctx)
	completed = true
	if err != nil {
		return toStatus(err)
	}
	if rec := orca.CallMetricsRecorderFromContext(ctx); rec != nil {
		rec.SetRequestCost("photos", float64(received))
	}

	state, err := s.editor.State(ctx)
	if err != nil {
		return toStatus(err)
	}
	resp, err := stateStruct(state, &stats)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode state: %v", err)
	}
	return stream.SendAndClose(resp)
}

func (s *CollageServer) Clear(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.editor.Clear(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.State(ctx, nil)
}

// Save persists the collage when the save control is enabled, that is for
// an even, non-zero number of photos.
func (s *CollageServer) Save(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	id, err := s.editor.SaveIfEnabled(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(id), nil
}

func (s *CollageServer) State(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	state, err := s.editor.State(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := stateStruct(state, nil)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode state: %v", err)
	}
	return resp, nil
}

func (s *CollageServer) Preview(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	img, err := s.editor.Preview(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	if img == nil {
		return nil, status.Error(codes.FailedPrecondition, "nothing rendered yet")
	}
	data, err := collage.EncodePNG(img)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode preview: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}

func (s *CollageServer) ListSaved(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	saved, err := s.reader.List()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to list collages: %v", err)
	}
	slices.SortFunc(saved, func(a, b collage.SavedCollage) int {
		return cmp.Or(a.SavedAt.Compare(b.SavedAt), cmp.Compare(a.ID, b.ID))
	})

	items := make([]any, 0, len(saved))
	for _, c := range saved {
		items = append(items, map[string]any{
			"id":       c.ID,
			"size":     c.Size,
			"saved_at": c.SavedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode list: %v", err)
	}
	return list, nil
}

func (s *CollageServer) LoadSaved(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	data, err := s.reader.Load(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(data), nil
}

func stateStruct(state uistate.State, stats *pipeline.Stats) (*structpb.Struct, error) {
	fields := map[string]any{
		"count":         state.Count,
		"save_enabled":  state.SaveEnabled,
		"clear_enabled": state.ClearEnabled,
		"add_enabled":   state.AddEnabled,
		"title":         state.Title,
	}
	if stats != nil {
		rejected := map[string]any{}
		for reason, n := range stats.Rejected {
			rejected[string(reason)] = n
		}
		fields["evaluated"] = stats.Evaluated
		fields["accepted"] = stats.Accepted
		fields["terminated"] = stats.Terminated
		fields["rejected"] = rejected
	}
	return structpb.NewStruct(fields)
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, editor.ErrNothingToSave), errors.Is(err, editor.ErrNoWriter),
		errors.Is(err, editor.ErrSessionCompleted), errors.Is(err, editor.ErrSaveDisabled):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, collage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, editor.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
