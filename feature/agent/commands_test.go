package agent

import (
	"context"
	"testing"
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr bool
	}{
		{line: "sync", want: Command{Name: CmdSync}},
		{line: "  SYNC  secondary ", want: Command{Name: CmdSync, Services: []inventory.Service{inventory.Secondary}}},
		{line: "verify p s", want: Command{Name: CmdVerify, Services: []inventory.Service{inventory.Primary, inventory.Secondary}}},
		{line: "check primary", want: Command{Name: CmdCheck, Services: []inventory.Service{inventory.Primary}}},
		{line: "resetapihistory", want: Command{Name: CmdResetAPIHistory}},
		{line: "status", want: Command{Name: CmdStatus}},
		{line: "quit", want: Command{Name: CmdQuit}},
		{line: "", wantErr: true},
		{line: "launch", wantErr: true},
		{line: "quit now", wantErr: true},
		{line: "sync tertiary", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecute_SetsFlags(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SecondaryEnabled = true
	h := newHarness(t, cfg)
	primary := h.state(inventory.Primary)
	secondary := h.state(inventory.Secondary)
	for _, s := range []*ServiceState{primary, secondary} {
		s.MustCheck, s.MustSync = false, false
		s.NextSync = t0.Add(time.Hour)
	}

	h.agent.Execute("sync secondary")
	assert.False(t, primary.MustSync)
	assert.True(t, secondary.MustSync)
	assert.Equal(t, t0, secondary.NextSync)

	h.agent.Execute("check")
	assert.True(t, primary.MustCheck)
	assert.True(t, secondary.MustCheck)

	h.agent.Execute("verify primary")
	assert.True(t, primary.verifyRequested)
	assert.False(t, secondary.verifyRequested)

	h.agent.Execute("bogus")
	assert.False(t, h.agent.quit)

	h.agent.Execute("quit")
	assert.True(t, h.agent.quit)
}

func TestExecute_ResetAPIHistory(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)
	for i := 0; i < 5; i++ {
		s.History.Increment(t0)
	}

	h.agent.Execute("resetapihistory primary")
	assert.Zero(t, s.History.Total())
	require.NoError(t, h.agent.fatal)
	assert.FileExists(t, cfg.Paths().State)
}

func TestExecute_StatusPublishesSnapshot(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeTracked(t, cfg, lot("3001", 3), lot("3002", 4))
	h := newHarness(t, cfg)

	h.agent.Execute("status")
	snap := h.agent.Status()
	require.NotNil(t, snap)
	assert.Equal(t, 7, snap.Inventory.Units)
	require.Len(t, snap.Services, 1)
	assert.Equal(t, "primary", snap.Services[0].Service)
	assert.True(t, snap.Services[0].MustSync)
	assert.Equal(t, 1000, snap.Services[0].DailyLimit)
}

func TestObjectBackup_Save(t *testing.T) {
	client := new(mocks.Client)
	b := NewObjectBackup(client, "stock-sync", "", 0)
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	client.On("PutObject", mock.Anything, "stock-sync", "backups/20240501T093000Z.json", mock.Anything, int64(2), mock.Anything).
		Return(minio.UploadInfo{}, nil)

	require.NoError(t, b.Save(context.Background(), []byte("{}"), at))
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "ListObjects", mock.Anything, mock.Anything, mock.Anything)
}

func TestObjectBackup_PrunesOldest(t *testing.T) {
	client := new(mocks.Client)
	b := NewObjectBackup(client, "stock-sync", "backups", 2)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	client.On("PutObject", mock.Anything, "stock-sync", "backups/20240501T100000Z.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, nil)
	client.On("ListObjects", mock.Anything, "stock-sync", minio.ListObjectsOptions{Prefix: "backups/", Recursive: true}).
		Return([]minio.ObjectInfo{
			{Key: "backups/20240501T100000Z.json"},
			{Key: "backups/20240501T080000Z.json"},
			{Key: "backups/20240501T090000Z.json"},
		})
	client.On("RemoveObject", mock.Anything, "stock-sync", "backups/20240501T080000Z.json", mock.Anything).Return(nil).Once()

	require.NoError(t, b.Save(context.Background(), []byte("{}"), at))
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "RemoveObject", 1)
}
