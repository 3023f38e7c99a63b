package reachkit

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Full(t *testing.T) {
	c, err := ParseConfig([]byte(`
verifySmtp: true
suggestDomain: true
detectName: true
enableProviderOptimizations: true
timeout: 15s
smtpOptions:
  ports: [25, 587]
  timeout: 2s
  maxRetries: 0
  hostname: verify.myapp.com
  useVRFY: false
  tls:
    rejectUnauthorized: true
    minVersion: TLSv1.3
  sequence:
    steps: [greeting, ehlo, mail_from, rcpt_to]
    from: probe@myapp.com
cache:
  mx:
    maxSize: 512
    ttl: 10m
`))
	require.NoError(t, err)

	require.NotNil(t, c.VerifySMTP)
	assert.True(t, *c.VerifySMTP)
	assert.Equal(t, 15*time.Second, time.Duration(c.Timeout))

	require.NotNil(t, c.SMTP)
	assert.Equal(t, []int{25, 587}, c.SMTP.Ports)
	require.NotNil(t, c.SMTP.MaxRetries, "an explicit maxRetries: 0 must survive parsing")
	assert.Equal(t, 0, *c.SMTP.MaxRetries)
	require.NotNil(t, c.SMTP.UseVRFY)
	assert.False(t, *c.SMTP.UseVRFY)
	require.NotNil(t, c.SMTP.TLS)
	assert.True(t, c.SMTP.TLS.Enabled)
	assert.True(t, c.SMTP.TLS.RejectUnauthorized)
	assert.Equal(t, "TLSv1.3", c.SMTP.TLS.MinVersion)

	require.Contains(t, c.Cache, "mx")
	assert.Equal(t, 512, c.Cache["mx"].MaxSize)
	assert.Equal(t, 10*time.Minute, time.Duration(c.Cache["mx"].TTL))
}

func TestParseConfig_TLSBooleanForm(t *testing.T) {
	c, err := ParseConfig([]byte(`
verifySmtp: true
smtpOptions:
  tls: false
`))
	require.NoError(t, err)
	require.NotNil(t, c.SMTP.TLS)
	assert.False(t, c.SMTP.TLS.Enabled)
}

func TestParseConfig_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseConfig([]byte("verifySmpt: true\n"))
	assert.Error(t, err)
}

func TestParseConfig_RejectsBadDuration(t *testing.T) {
	_, err := ParseConfig([]byte("timeout: soon\n"))
	assert.Error(t, err)
}

func TestConfigVerifier_AppliesOptions(t *testing.T) {
	c, err := ParseConfig([]byte(`
verifyMx: false
checkDisposable: false
verifySmtp: true
smtpOptions:
  ports: [587]
  maxRetries: 0
  hostname: verify.myapp.com
  tls:
    minVersion: TLSv1.2
`))
	require.NoError(t, err)

	v := c.Verifier()
	require.NoError(t, v.err)

	assert.False(t, v.verifyMX)
	assert.False(t, v.checkDisposable)
	assert.True(t, v.verifySMTP)
	assert.Equal(t, []int{587}, v.smtpOpts.Ports)
	require.NotNil(t, v.smtpOpts.MaxRetries)
	assert.Equal(t, 0, *v.smtpOpts.MaxRetries)
	assert.Equal(t, "verify.myapp.com", v.smtpOpts.HelloName)
	require.NotNil(t, v.smtpOpts.TLS)
	assert.False(t, v.smtpOpts.TLS.Disabled)
	assert.Equal(t, uint16(tls.VersionTLS12), v.smtpOpts.TLS.MinVersion)
}

func TestConfigVerifier_UnknownTLSVersionIsRecorded(t *testing.T) {
	c, err := ParseConfig([]byte(`
verifySmtp: true
smtpOptions:
  tls:
    minVersion: SSLv3
`))
	require.NoError(t, err)

	v := c.Verifier()
	assert.ErrorIs(t, v.err, ErrInvalidSMTPOptions)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir() + "/nope.yaml")
	assert.Error(t, err)
}
