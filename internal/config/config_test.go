package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "chain:\n  private_key: \""+testKey+"\"\ndatabase:\n  in_memory: true\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 10, cfg.Pipeline.PrepareBatchSize)
	require.Equal(t, 500*time.Millisecond, cfg.Pipeline.PrepareDelay)
	require.Equal(t, 5, cfg.Pipeline.CreateBatchSize)
	require.Equal(t, 800*time.Millisecond, cfg.Pipeline.CreateDelay)
	require.Equal(t, 3, cfg.Pipeline.CreateMaxAttempts)
	require.Equal(t, time.Second, cfg.Pipeline.CreateBackoffStep)
	require.Equal(t, 20, cfg.Cancellation.ChunkSize)
	require.Equal(t, "zkevm-", cfg.Cancellation.IDPrefix)
	require.Equal(t, int64(13371), cfg.Chain.ChainID)
	require.Equal(t, []string{"stdout"}, cfg.Logging.OutputPaths)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "chain:\n  private_key: \""+testKey+"\"\npipeline:\n  create_batch_size: 7\n")
	t.Setenv("LISTER_PIPELINE_CREATE_BATCH_SIZE", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Pipeline.CreateBatchSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate_AggregatesProblems(t *testing.T) {
	path := writeConfig(t, "cancellation:\n  chunk_size: 50\npipeline:\n  prepare_batch_size: 0\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "chain.private_key")
	require.Contains(t, err.Error(), "cancellation.chunk_size")
	require.Contains(t, err.Error(), "pipeline.prepare_batch_size")
}

func TestIsHexAddress(t *testing.T) {
	require.True(t, isHexAddress("0x06d92b637dfcdf95a2faba04ef22b2a096029b69"))
	require.True(t, isHexAddress("06D92B637DFCDF95A2FABA04EF22B2A096029B69"))
	require.False(t, isHexAddress("0x06d9"))
	require.False(t, isHexAddress("0xzzd92b637dfcdf95a2faba04ef22b2a096029b69"))
}
