package staking

// Session is a validator-set rotation period. EndBlock is set when the next session starts.
type Session struct {
	ID         uint32  `json:"id"`
	StartBlock uint64  `json:"startBlock"`
	EndBlock   *uint64 `json:"endBlock,omitempty"`
}

// Era is a staking epoch. Created once per era index.
type Era struct {
	ID         uint32  `json:"id"`
	StartBlock uint64  `json:"startBlock"`
	EndBlock   *uint64 `json:"endBlock,omitempty"`
}

// Close sets EndBlock to the block before next starts. Returns false if it was already closed
// at that block.
func (s *Session) Close(nextStart uint64) bool {
	return closeAt(&s.EndBlock, nextStart)
}

// Close behaves like Session.Close.
func (e *Era) Close(nextStart uint64) bool {
	return closeAt(&e.EndBlock, nextStart)
}

func closeAt(end **uint64, nextStart uint64) bool {
	if nextStart == 0 {
		return false
	}
	v := nextStart - 1
	if *end != nil && **end == v {
		return false
	}
	*end = &v
	return true
}
