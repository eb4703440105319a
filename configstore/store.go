// Package configstore persists quota guarantees, DRF weights and the agent
// whitelist to ZooKeeper, so a restarted master can repopulate an Engine via
// Recover without the allocator itself knowing about ZooKeeper wire details.
package configstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	zk "github.com/samuel/go-zookeeper/zk"

	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

// Store is a ZooKeeper-backed persistence layer for allocator configuration.
type Store struct {
	hostports []string
	rootDir   string
	timeout   time.Duration
	acl       []zk.ACL
	conn      *zk.Conn
}

// New builds a Store against the given ensemble; Open must be called before
// any Load/Save method.
func New(servers []string, rootDir string) *Store {
	return &Store{
		hostports: servers,
		rootDir:   rootDir,
		timeout:   3 * time.Second,
		acl:       zk.WorldACL(zk.PermAll),
	}
}

func (s *Store) Open() error {
	if !strings.HasPrefix(s.rootDir, "/") {
		return fmt.Errorf("configstore: root dir must start with '/'")
	}
	s.rootDir = strings.TrimSuffix(s.rootDir, "/")

	conn, _, err := zk.Connect(s.hostports, s.timeout)
	if err != nil {
		return err
	}
	for _, dir := range []string{s.rootDir, s.quotasDir(), s.weightsDir()} {
		if err := s.ensureDir(conn, dir); err != nil {
			conn.Close()
			return err
		}
	}
	s.conn = conn
	return nil
}

func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

func (s *Store) ensureDir(conn *zk.Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	cur := ""
	for _, p := range parts {
		cur += "/" + p
		exists, _, err := conn.Exists(cur)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := conn.Create(cur, nil, 0, s.acl); err != nil && err != zk.ErrNodeExists {
			return err
		}
	}
	return nil
}

func (s *Store) quotasDir() string    { return s.rootDir + "/quotas" }
func (s *Store) weightsDir() string   { return s.rootDir + "/weights" }
func (s *Store) whitelistPath() string { return s.rootDir + "/whitelist" }

func (s *Store) quotaPath(role ids.Role) string  { return s.quotasDir() + "/" + sanitize(role) }
func (s *Store) weightPath(role ids.Role) string { return s.weightsDir() + "/" + sanitize(role) }

// sanitize replaces the znode path separator; role names containing '/'
// (e.g. "a/b" hierarchical roles) would otherwise create spurious znode
// nesting.
func sanitize(role ids.Role) string {
	return strings.ReplaceAll(string(role), "/", "%2F")
}

// SaveQuota upserts role's guarantee.
func (s *Store) SaveQuota(role ids.Role, guarantee resources.ResourceQuantities) error {
	data, err := json.Marshal(guarantee)
	if err != nil {
		return err
	}
	return s.upsert(s.quotaPath(role), data)
}

// RemoveQuota deletes role's persisted guarantee, if any.
func (s *Store) RemoveQuota(role ids.Role) error {
	err := s.conn.Delete(s.quotaPath(role), -1)
	if err == zk.ErrNoNode {
		return nil
	}
	return err
}

// LoadQuotas returns every persisted role guarantee.
func (s *Store) LoadQuotas() (map[ids.Role]resources.ResourceQuantities, error) {
	children, _, err := s.conn.Children(s.quotasDir())
	if err != nil {
		return nil, err
	}
	out := make(map[ids.Role]resources.ResourceQuantities, len(children))
	for _, child := range children {
		data, _, err := s.conn.Get(s.quotasDir() + "/" + child)
		if err != nil {
			return nil, err
		}
		var q resources.ResourceQuantities
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, err
		}
		out[unsanitize(child)] = q
	}
	return out, nil
}

// SaveWeight upserts role's DRF weight.
func (s *Store) SaveWeight(role ids.Role, weight float64) error {
	data, err := json.Marshal(weight)
	if err != nil {
		return err
	}
	return s.upsert(s.weightPath(role), data)
}

// LoadWeights returns every persisted role weight.
func (s *Store) LoadWeights() (map[ids.Role]float64, error) {
	children, _, err := s.conn.Children(s.weightsDir())
	if err != nil {
		return nil, err
	}
	out := make(map[ids.Role]float64, len(children))
	for _, child := range children {
		data, _, err := s.conn.Get(s.weightsDir() + "/" + child)
		if err != nil {
			return nil, err
		}
		var w float64
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		out[unsanitize(child)] = w
	}
	return out, nil
}

// SaveWhitelist overwrites the persisted agent whitelist. A nil list clears
// it; an empty non-nil list is stored, and loaded back, as an empty
// whitelist.
func (s *Store) SaveWhitelist(agents []ids.AgentID) error {
	data, err := json.Marshal(agents)
	if err != nil {
		return err
	}
	return s.upsert(s.whitelistPath(), data)
}

// LoadWhitelist returns the persisted whitelist, or (nil, nil) if none was
// ever saved.
func (s *Store) LoadWhitelist() ([]ids.AgentID, error) {
	exists, _, err := s.conn.Exists(s.whitelistPath())
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	data, _, err := s.conn.Get(s.whitelistPath())
	if err != nil {
		return nil, err
	}
	var agents []ids.AgentID
	if err := json.Unmarshal(data, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

func (s *Store) upsert(path string, data []byte) error {
	exists, _, err := s.conn.Exists(path)
	if err != nil {
		return err
	}
	if !exists {
		_, err := s.conn.Create(path, data, 0, s.acl)
		return err
	}
	_, err = s.conn.Set(path, data, -1)
	return err
}

func unsanitize(child string) ids.Role {
	return ids.Role(strings.ReplaceAll(child, "%2F", "/"))
}
