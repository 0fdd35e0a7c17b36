package ovms

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rc4"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrHandshake 握手被拒绝或格式错误
	ErrHandshake = errors.New("ovms: handshake failed")
	// ErrMalformed 协议记录无法解析
	ErrMalformed = errors.New("ovms: malformed message")
)

const (
	greetingTag     = "MP-S"
	replyTag        = "MP-A"
	messageTag      = "MP-0"
	protocolVersion = "0"
	cipherRC4       = "RC4"

	clientTokenLength = 22
	keystreamDiscard  = 1024

	// 令牌字符集（base64 字母表）
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

	labelServerToClient = "S2C"
	labelClientToServer = "C2S"
)

// Keys 一次握手派生的密钥
type Keys struct {
	Session []byte
	RX      []byte // 服务器 → 客户端
	TX      []byte // 客户端 → 服务器
}

// DeriveKeys 由预共享密钥和对端令牌派生会话密钥及收发密钥
func DeriveKeys(secret, peerToken string) Keys {
	session := hmacMD5([]byte(secret), []byte(peerToken))
	return Keys{
		Session: session,
		RX:      hmacMD5(session, []byte(labelServerToClient)),
		TX:      hmacMD5(session, []byte(labelClientToServer)),
	}
}

// ResponseDigest 握手应答摘要
func ResponseDigest(sessionKey []byte, clientToken string) string {
	return base64.StdEncoding.EncodeToString(hmacMD5(sessionKey, []byte(clientToken)))
}

// NewClientToken 从随机源生成客户端令牌
func NewClientToken(r io.Reader) (string, error) {
	buf := make([]byte, clientTokenLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random token: %w", err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}

// ParseGreeting 解析服务器问候 "MP-S 0 <token> <cipher>"，返回对端令牌
func ParseGreeting(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 || fields[0] != greetingTag || fields[1] != protocolVersion {
		return "", fmt.Errorf("%w: unexpected greeting %q", ErrHandshake, strings.TrimSpace(line))
	}
	if !strings.EqualFold(fields[3], cipherRC4) {
		return "", fmt.Errorf("%w: unsupported cipher %q", ErrHandshake, fields[3])
	}
	return fields[2], nil
}

// FormatReply 握手应答行
func FormatReply(clientToken, digest, vehicleID string) string {
	return fmt.Sprintf("%s %s %s %s %s\r\n", replyTag, protocolVersion, clientToken, digest, vehicleID)
}

// newStream 初始化 RC4 流并丢弃前 1024 字节密钥流
func newStream(key []byte) (*rc4.Cipher, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init rc4: %w", err)
	}
	discard := make([]byte, keystreamDiscard)
	c.XORKeyStream(discard, discard)
	return c, nil
}

func hmacMD5(key, data []byte) []byte {
	mac := hmac.New(md5.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
