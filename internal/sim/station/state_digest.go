package station

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// StateDigest hashes the state after the last completed tick.
func (s *Station) StateDigest() string {
	return s.stateDigest(lastCompleted(s.tick.Load()))
}

func (s *Station) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteF64(h, &tmp, s.clock.Days)
	digestWriteF64(h, &tmp, s.clock.TotalDays)
	h.Write([]byte{boolByte(s.clock.Paused), boolByte(s.clock.BossDefeated)})
	digestWriteU64(h, &tmp, uint64(s.rebirthOne))
	digestWriteU64(h, &tmp, uint64(s.rebirthTwo))

	stored := s.graph.Stored()
	keys := make([]string, 0, len(stored))
	for k := range stored {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		digestWriteF64(h, &tmp, stored[k])
	}

	digestUnit(h, &tmp, s.grid.Name, s.grid.Level, s.grid.MaxLevel, s.grid.Xp, false)
	for _, m := range s.scheduler.Modules() {
		h.Write([]byte(m.Name))
		h.Write([]byte{boolByte(m.Active)})
		digestWriteU64(h, &tmp, uint64(m.MaxLevel))
	}
	for _, op := range s.scheduler.Operations() {
		digestUnit(h, &tmp, op.Name, op.Level, op.MaxLevel, op.Xp, op.Active)
	}
	for _, b := range s.conflicts.Battles() {
		digestUnit(h, &tmp, b.Name, b.Level, b.MaxLevel, b.Xp, b.Active)
	}
	if boss := s.conflicts.Boss(); boss != nil {
		digestUnit(h, &tmp, boss.Name, boss.Layer, boss.MaxLayer, boss.Xp, boss.Active)
		h.Write([]byte{boolByte(boss.Resolved), boolByte(boss.Available)})
	}

	h.Write([]byte(s.SelectedPOI()))
	for _, g := range s.gates {
		h.Write([]byte(unlockKey(g)))
		h.Write([]byte{boolByte(g.Gate.Completed)})
	}
	secrets := make([]string, 0, len(s.secrets))
	for k := range s.secrets {
		secrets = append(secrets, k)
	}
	sort.Strings(secrets)
	for _, k := range secrets {
		h.Write([]byte(k))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestUnit(h hashWriter, tmp *[8]byte, name string, level, maxLevel int, xp float64, active bool) {
	h.Write([]byte(name))
	digestWriteU64(h, tmp, uint64(level))
	digestWriteU64(h, tmp, uint64(maxLevel))
	digestWriteF64(h, tmp, xp)
	h.Write([]byte{boolByte(active)})
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
