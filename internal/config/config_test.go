package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/nsh"
	"github.com/mongiaK/openvswitch/internal/log"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeFile(t, "config.yml", `
ovs-nsh:
  log:
    level: debug
    appenders:
      - type: console
      - type: file
        file:
          filename: /tmp/ovs-nsh.log
          max_size: 10
  buffer:
    headroom: 64
  gso:
    segment_size: 1400
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
  notify:
    partitions: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Log.Appenders, 2)
	assert.Equal(t, log.AppenderFile, cfg.Log.Appenders[1].Type)
	assert.Equal(t, "/tmp/ovs-nsh.log", cfg.Log.Appenders[1].File.Filename)
	assert.Equal(t, 10, cfg.Log.Appenders[1].File.MaxSize)
	assert.Equal(t, 64, cfg.Buffer.Headroom)
	assert.Equal(t, 65536+4096, cfg.Buffer.MaxSize)
	assert.Equal(t, 1400, cfg.GSO.SegmentSize)
	assert.Equal(t, 64, cfg.GSO.MaxSegments)
	assert.Equal(t, 1500, cfg.Datapath.MTU)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 2, cfg.Notify.Partitions)
	assert.Equal(t, 256, cfg.Notify.QueueSize)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, log.DefaultLevel, cfg.Log.Level)
	require.Len(t, cfg.Log.Appenders, 1)
	assert.Equal(t, log.AppenderConsole, cfg.Log.Appenders[0].Type)
	assert.Equal(t, 128, cfg.Buffer.Headroom)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OVS_NSH_LOG_LEVEL", "warn")
	t.Setenv("OVS_NSH_DATAPATH_MTU", "9000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 9000, cfg.Datapath.MTU)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "ovs-nsh:\n  log:\n    level: loud\n"},
		{"appender type", "ovs-nsh:\n  log:\n    appenders:\n      - type: kafka\n"},
		{"file appender without filename", "ovs-nsh:\n  log:\n    appenders:\n      - type: file\n"},
		{"segment size", "ovs-nsh:\n  gso:\n    segment_size: 0\n"},
		{"mtu", "ovs-nsh:\n  datapath:\n    mtu: 10\n"},
		{"buffer size", "ovs-nsh:\n  buffer:\n    max_size: 100\n"},
		{"metrics path", "ovs-nsh:\n  metrics:\n    enabled: true\n    path: metrics\n"},
		{"partitions", "ovs-nsh:\n  notify:\n    partitions: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yml", tt.content))
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}

func TestParseTemplate_MD1(t *testing.T) {
	tmpl, err := ParseTemplate([]byte(`
md_type: 1
ttl: 10
spi: 0x100
si: 254
context: [1, 2]
`))
	require.NoError(t, err)

	h := tmpl.Header()
	assert.Equal(t, nsh.MD1HeaderLen, tmpl.Len())
	assert.Equal(t, uint8(10), h.TTL())
	assert.Equal(t, uint32(0x100), h.SPI())
	assert.Equal(t, uint8(254), h.SI())
	assert.Equal(t, [4]uint32{1, 2, 0, 0}, h.Context())
}

func TestParseTemplate_MD2(t *testing.T) {
	tmpl, err := ParseTemplate([]byte(`
md_type: 2
spi: 7
tlvs:
  - {class: 0x0102, type: 7, value: "aabbcc"}
  - {class: 1, type: 1, value: ""}
`))
	require.NoError(t, err)
	assert.Equal(t, 8+8+4, tmpl.Len())
	assert.Equal(t, uint8(nsh.MaxTTL), tmpl.Header().TTL())

	tlvs, err := tmpl.Header().TLVs()
	require.NoError(t, err)
	require.Len(t, tlvs, 2)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, tlvs[0].Value)
}

func TestParseTemplate_Invalid(t *testing.T) {
	tests := map[string]string{
		"md type":       "md_type: 3\n",
		"md1 with tlvs": "md_type: 1\ntlvs: [{class: 1, type: 1, value: \"\"}]\n",
		"md1 context":   "md_type: 1\ncontext: [1, 2, 3, 4, 5]\n",
		"md2 context":   "md_type: 2\ncontext: [1]\n",
		"bad hex":       "md_type: 2\ntlvs: [{class: 1, type: 1, value: \"zz\"}]\n",
		"ttl too large": "md_type: 1\nttl: 64\n",
		"spi too large": "md_type: 1\nspi: 0x1000000\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(content))
			assert.ErrorIs(t, err, core.ErrInvalidHeader)
		})
	}
}

func TestLoadTemplate(t *testing.T) {
	tmpl, err := LoadTemplate(writeFile(t, "tmpl.yaml", "md_type: 1\nspi: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), tmpl.Header().SPI())

	_, err = LoadTemplate(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
