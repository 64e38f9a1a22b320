package pointcloud

import "sync/atomic"

// Snapshot holds the most recent point cloud using replace-pointer
// semantics: the packet path publishes complete immutable clouds, the
// render path reads whichever cloud is current. Neither side blocks the
// other beyond the pointer swap, so sonar packet rate and video frame
// rate stay decoupled.
type Snapshot struct {
	cur atomic.Pointer[Cloud]
}

// Publish replaces the current cloud. The cloud must not be mutated after
// publishing.
func (s *Snapshot) Publish(c *Cloud) {
	if c == nil {
		return
	}
	s.cur.Store(c)
}

// Latest returns the most recently published cloud, or nil if no packet
// has been decoded yet.
func (s *Snapshot) Latest() *Cloud {
	return s.cur.Load()
}
