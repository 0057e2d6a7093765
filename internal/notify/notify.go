// Package notify delivers ACS-initiated connection requests to devices. A
// request asks the device to open a new CWMP session; it carries no payload
// of its own.
package notify

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crestwave/acs/internal/domain"
)

// Method records which delivery channel succeeded.
type Method string

const (
	MethodXMPP Method = "xmpp"
	MethodUDP  Method = "udp"
	MethodHTTP Method = "http"
	MethodNone Method = "none"
)

// Result reports a delivery attempt across the channel chain.
type Result struct {
	Delivered bool     `json:"delivered"`
	Method    Method   `json:"method"`
	Attempts  []string `json:"attempts"`
}

// XMPPSender delivers a connection request over an XMPP relay for devices
// behind NAT with a standing XMPP connection.
type XMPPSender interface {
	SendConnectionRequest(ctx context.Context, jid string) error
}

// Notifier tries channels in preference order: XMPP when the device has a
// JID, UDP when it has a learned UDP address, plain HTTP last. The first
// success wins; later channels are not attempted.
type Notifier struct {
	xmpp    XMPPSender
	client  *http.Client
	timeout time.Duration
	log     *slog.Logger
}

func NewNotifier(xmpp XMPPSender, log *slog.Logger) *Notifier {
	timeout := 10 * time.Second
	return &Notifier{
		xmpp:    xmpp,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		log:     log,
	}
}

// Request delivers a connection request to the device. It returns a Result
// even on total failure so callers can log what was tried.
func (n *Notifier) Request(ctx context.Context, d *domain.Device) error {
	res := n.RequestDetailed(ctx, d)
	if !res.Delivered {
		return fmt.Errorf("connection request to %s failed: %s", d.DeviceKey, strings.Join(res.Attempts, "; "))
	}
	return nil
}

// RequestDetailed is Request with the full attempt trail.
func (n *Notifier) RequestDetailed(ctx context.Context, d *domain.Device) *Result {
	res := &Result{Method: MethodNone}

	if n.xmpp != nil && d.XMPPEnabled && d.XMPPJID != "" {
		if err := n.xmpp.SendConnectionRequest(ctx, d.XMPPJID); err == nil {
			res.Delivered = true
			res.Method = MethodXMPP
			n.log.Info("connection request delivered", "device", d.DeviceKey, "method", "xmpp")
			return res
		} else {
			res.Attempts = append(res.Attempts, fmt.Sprintf("xmpp: %v", err))
		}
	}

	if d.UDPAddress != "" {
		if err := n.sendUDP(ctx, d.UDPAddress, d.ConnectionRequestUser, d.ConnectionRequestPassword); err == nil {
			res.Delivered = true
			res.Method = MethodUDP
			n.log.Info("connection request delivered", "device", d.DeviceKey, "method", "udp")
			return res
		} else {
			res.Attempts = append(res.Attempts, fmt.Sprintf("udp: %v", err))
		}
	}

	if d.ConnectionRequestURL != "" {
		if err := n.sendHTTP(ctx, d); err == nil {
			res.Delivered = true
			res.Method = MethodHTTP
			n.log.Info("connection request delivered", "device", d.DeviceKey, "method", "http")
			return res
		} else {
			res.Attempts = append(res.Attempts, fmt.Sprintf("http: %v", err))
		}
	}

	if len(res.Attempts) == 0 {
		res.Attempts = append(res.Attempts, "no reachable channel configured")
	}
	n.log.Warn("connection request undeliverable", "device", d.DeviceKey, "attempts", res.Attempts)
	return res
}

// sendHTTP issues the GET, answering one digest challenge. Any 2xx or 503
// counts as delivered; devices return 503 when a session is already open,
// which still means the request got through.
func (n *Notifier) sendHTTP(ctx context.Context, d *domain.Device) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.ConnectionRequestURL, nil)
	if err != nil {
		return err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		challenge := challengeFrom(resp)
		if challenge == "" {
			return errors.New("401 without a challenge")
		}
		u, err := url.Parse(d.ConnectionRequestURL)
		if err != nil {
			return err
		}
		uri := u.RequestURI()
		auth, err := digestAuth(challenge, http.MethodGet, uri, d.ConnectionRequestUser, d.ConnectionRequestPassword)
		if err != nil {
			return err
		}
		req2, err := http.NewRequestWithContext(ctx, http.MethodGet, d.ConnectionRequestURL, nil)
		if err != nil {
			return err
		}
		req2.Header.Set("Authorization", auth)
		resp, err = n.client.Do(req2)
		if err != nil {
			return err
		}
		resp.Body.Close()
	}

	if (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusServiceUnavailable {
		return nil
	}
	return fmt.Errorf("device answered %d", resp.StatusCode)
}

// sendUDP fires the TR-069 Annex G datagram: an HTTP-shaped GET carrying a
// timestamp, message id, and signature over the connection request
// credentials. Fire and forget; there is no acknowledgement on this
// channel.
func (n *Notifier) sendUDP(ctx context.Context, address, username, password string) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", address)
	if err != nil {
		return err
	}
	defer conn.Close()

	payload := buildUDPPayload(username, password)
	if _, err := conn.Write(payload); err != nil {
		return err
	}
	return nil
}

func buildUDPPayload(username, password string) []byte {
	ts := time.Now().Unix()
	var idBuf [4]byte
	_, _ = rand.Read(idBuf[:])
	id := binary.BigEndian.Uint32(idBuf[:])
	cn := randomCnonce()

	text := fmt.Sprintf("%d%d%s%s", ts, id, username, cn)
	sig := hmacSHA1Hex(password, text)

	msg := fmt.Sprintf(
		"GET http://localhost/?ts=%d&id=%d&un=%s&cn=%s&sig=%s HTTP/1.1\r\n\r\n",
		ts, id, username, cn, sig)
	return []byte(msg)
}
