package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// Membership is the collaborator boundary for fleet membership (§6): "a
// server that, when connected, sends the current list of block servers
// and closes." The proxy treats it as pluggable, like Cipher and the hash
// primitive; MembershipClient below is the concrete TCP implementation.
type Membership interface {
	// Fetch connects to the inform server and returns the current
	// member list, or an empty slice if the fleet has shut down.
	Fetch() ([]NodeAddr, error)
}

// MembershipClient dials a fixed inform-server address and decodes its
// response: a 4-byte little-endian count followed by that many 4-byte
// addresses (§6). An empty list is not an error — it is the fleet's
// signal to shut down cleanly (§7).
type MembershipClient struct {
	addr   string
	logger *logrus.Logger
}

// NewMembershipClient constructs a client dialing addr (host:port).
func NewMembershipClient(addr string, logger *logrus.Logger) *MembershipClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MembershipClient{addr: addr, logger: logger}
}

// Fetch implements Membership.
func (m *MembershipClient) Fetch() ([]NodeAddr, error) {
	conn, err := net.Dial("tcp", m.addr)
	if err != nil {
		return nil, fmt.Errorf("membership: dial %s: %w", m.addr, err)
	}
	defer conn.Close()

	var countBuf [4]byte
	if _, err := io.ReadFull(conn, countBuf[:]); err != nil {
		return nil, fmt.Errorf("membership: read count: %w", err)
	}
	count := binary.LittleEndian.Uint32(countBuf[:])
	if count == 0 {
		m.logger.Info("membership: empty member list, fleet shutting down")
		return nil, nil
	}

	members := make([]NodeAddr, count)
	for i := range members {
		if _, err := io.ReadFull(conn, members[i][:]); err != nil {
			return nil, fmt.Errorf("membership: read address %d/%d: %w", i+1, count, err)
		}
	}
	m.logger.Infof("membership: fetched %d block servers", count)
	return members, nil
}

// LoadRing fetches the current member list and rebuilds ring from
// scratch. A nil, nil return (empty list, no error) propagates as a
// clean-shutdown signal to the caller.
func LoadRing(m Membership, ring *Ring) (shutdown bool, err error) {
	members, err := m.Fetch()
	if err != nil {
		return false, err
	}
	if len(members) == 0 {
		return true, nil
	}
	for _, addr := range members {
		ring.Add(addr)
	}
	return false, nil
}
