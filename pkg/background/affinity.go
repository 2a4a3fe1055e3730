package background

import (
	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/entity"
)

// pickStepDownTarget implements the pure selection logic of §4.10's
// leader-affinity step-down: if selfZone is not one of the affinitized
// zones, pick any peer (other than selfID) whose recorded placement is
// affinitized. Returns ok=false if selfZone is already in affinity, or no
// affinitized peer is known.
func pickStepDownTarget(selfID string, selfZone entity.CloudInfo, affinitized []entity.CloudInfo, peers map[string]entity.CloudInfo) (string, bool) {
	if len(affinitized) == 0 || inAffinity(selfZone, affinitized) {
		return "", false
	}
	for nodeID, zone := range peers {
		if nodeID == selfID {
			continue
		}
		if inAffinity(zone, affinitized) {
			return nodeID, true
		}
	}
	return "", false
}

func inAffinity(zone entity.CloudInfo, affinitized []entity.CloudInfo) bool {
	for _, a := range affinitized {
		if a == zone {
			return true
		}
	}
	return false
}

// RunLeaderAffinityStepDown implements §4.10's leader-affinity step-down:
// if this node is the sys-catalog leader and sits outside the configured
// affinitized cloud/region/zone set, it picks an in-affinity peer (from the
// placements recorded via Manager.SetMasterPlacement) and issues a
// consensus leadership transfer to it. A no-op if not leader, no
// affinitized zones are configured, or no in-affinity peer is known.
func RunLeaderAffinityStepDown(m *catalog.Manager) error {
	if !m.IsLeader() {
		return nil
	}
	affinitized := m.ClusterConfig().LockForRead().ReplicationInfo.AffinitizedLeaders
	selfZone, _ := m.MasterPlacement(m.NodeID())

	targetID, ok := pickStepDownTarget(m.NodeID(), selfZone, affinitized, masterPlacementSnapshot(m))
	if !ok {
		return nil
	}

	peers, err := m.Peers()
	if err != nil {
		return err
	}
	for _, p := range peers {
		if string(p.ID) == targetID {
			return m.StepDownTo(targetID, string(p.Address))
		}
	}
	return nil
}

func masterPlacementSnapshot(m *catalog.Manager) map[string]entity.CloudInfo {
	peers, err := m.Peers()
	if err != nil {
		return nil
	}
	out := make(map[string]entity.CloudInfo, len(peers))
	for _, p := range peers {
		if zone, ok := m.MasterPlacement(string(p.ID)); ok {
			out[string(p.ID)] = zone
		}
	}
	return out
}
