package usecase

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
)

// mockSnapshotStore keeps the encoded snapshot in memory, like a real store.
type mockSnapshotStore struct {
	mu        sync.Mutex
	data      []byte
	loadFn    func(ctx context.Context) (model.Snapshot, error)
	saveFn    func(ctx context.Context, snap model.Snapshot) error
	saveCount atomic.Int32
}

func newMockSnapshotStore() *mockSnapshotStore {
	return &mockSnapshotStore{}
}

// seed stores snap as if it had been saved earlier.
func (m *mockSnapshotStore) seed(snap model.Snapshot) {
	data, err := snap.Encode()
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
}

// snapshot decodes the stored content.
func (m *mockSnapshotStore) snapshot() model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, err := model.DecodeSnapshot(m.data)
	if err != nil {
		panic(err)
	}
	return snap
}

func (m *mockSnapshotStore) Load(ctx context.Context) (model.Snapshot, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return m.snapshot(), nil
}

func (m *mockSnapshotStore) Save(ctx context.Context, snap model.Snapshot) error {
	m.saveCount.Add(1)
	if m.saveFn != nil {
		return m.saveFn(ctx, snap)
	}
	m.seed(snap)
	return nil
}

// mockLanguageModel provides a configurable mock for LanguageModel.
type mockLanguageModel struct {
	completeFn func(ctx context.Context, req repository.CompletionRequest) (string, error)
	calls      atomic.Int32
}

func (m *mockLanguageModel) Complete(ctx context.Context, req repository.CompletionRequest) (string, error) {
	m.calls.Add(1)
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return "Hallo! Wie kann ich helfen?", nil
}

// mockAvatarProvider provides a configurable mock for AvatarProvider.
type mockAvatarProvider struct {
	createTalkFn func(ctx context.Context, req repository.TalkRequest) (string, error)
	getTalkFn    func(ctx context.Context, talkID string) (*model.Talk, error)
	creditsFn    func(ctx context.Context) ([]byte, error)
}

func (m *mockAvatarProvider) CreateTalk(ctx context.Context, req repository.TalkRequest) (string, error) {
	if m.createTalkFn != nil {
		return m.createTalkFn(ctx, req)
	}
	return "tlk_test", nil
}

func (m *mockAvatarProvider) GetTalk(ctx context.Context, talkID string) (*model.Talk, error) {
	if m.getTalkFn != nil {
		return m.getTalkFn(ctx, talkID)
	}
	return &model.Talk{ID: talkID, Status: model.TalkStatusDone, ResultURL: "https://cdn.example/" + talkID + ".mp4"}, nil
}

func (m *mockAvatarProvider) Credits(ctx context.Context) ([]byte, error) {
	if m.creditsFn != nil {
		return m.creditsFn(ctx)
	}
	return []byte(`{"remaining":10}`), nil
}

// mockAvatarService provides a configurable mock for AvatarService.
type mockAvatarService struct {
	generateVideoFn func(ctx context.Context, text string) (*VideoResult, error)
	awaitVideoFn    func(ctx context.Context, talkID string) (*VideoResult, error)
	creditsFn       func(ctx context.Context) ([]byte, error)
	calls           atomic.Int32
	awaitCalls      atomic.Int32
}

func (m *mockAvatarService) GenerateVideo(ctx context.Context, text string) (*VideoResult, error) {
	m.calls.Add(1)
	if m.generateVideoFn != nil {
		return m.generateVideoFn(ctx, text)
	}
	return &VideoResult{TalkID: "tlk_test", VideoURL: "https://cdn.example/tlk_test.mp4", Outcome: model.ResultSuccess}, nil
}

func (m *mockAvatarService) AwaitVideo(ctx context.Context, talkID string) (*VideoResult, error) {
	m.awaitCalls.Add(1)
	if m.awaitVideoFn != nil {
		return m.awaitVideoFn(ctx, talkID)
	}
	return &VideoResult{TalkID: talkID, VideoURL: "https://cdn.example/" + talkID + ".mp4", Outcome: model.ResultSuccess}, nil
}

func (m *mockAvatarService) Credits(ctx context.Context) ([]byte, error) {
	if m.creditsFn != nil {
		return m.creditsFn(ctx)
	}
	return nil, nil
}

// mockSpeechSynthesizer provides a configurable mock for SpeechSynthesizer.
type mockSpeechSynthesizer struct {
	synthesizeFn func(ctx context.Context, req repository.SpeechRequest) (io.ReadCloser, error)
	calls        atomic.Int32
}

func (m *mockSpeechSynthesizer) Synthesize(ctx context.Context, req repository.SpeechRequest) (io.ReadCloser, error) {
	m.calls.Add(1)
	if m.synthesizeFn != nil {
		return m.synthesizeFn(ctx, req)
	}
	return io.NopCloser(strings.NewReader("ID3audio")), nil
}

// mockObjectStorage provides a configurable mock for ObjectStorage.
type mockObjectStorage struct {
	uploadFn   func(ctx context.Context, key string, reader io.Reader, contentType string) error
	downloadFn func(ctx context.Context, key string) (io.ReadCloser, error)
	existsFn   func(ctx context.Context, key string) (bool, error)
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, reader, contentType)
	}
	return nil
}

func (m *mockObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, key)
	}
	return nil, repository.ErrObjectNotFound
}

func (m *mockObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

// mockRenderQueue provides a configurable mock for RenderQueue.
type mockRenderQueue struct {
	publishRenderTaskFn  func(ctx context.Context, task repository.RenderTask) error
	consumeRenderTasksFn func(ctx context.Context, handler func(task repository.RenderTask) error) error
}

func (m *mockRenderQueue) PublishRenderTask(ctx context.Context, task repository.RenderTask) error {
	if m.publishRenderTaskFn != nil {
		return m.publishRenderTaskFn(ctx, task)
	}
	return nil
}

func (m *mockRenderQueue) ConsumeRenderTasks(ctx context.Context, handler func(task repository.RenderTask) error) error {
	if m.consumeRenderTasksFn != nil {
		return m.consumeRenderTasksFn(ctx, handler)
	}
	return nil
}

func (m *mockRenderQueue) Close() error {
	return nil
}
