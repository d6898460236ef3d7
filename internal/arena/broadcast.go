package arena

// sendLocked writes one frame to a single participant's connection. Returns
// the user's id when the write fails so the caller can drop them after
// releasing the session mutex.
func (s *Session) sendLocked(userID string, data []byte) []string {
	p, ok := s.participants[userID]
	if !ok {
		return nil
	}
	if err := p.conn.Send(data); err != nil {
		return []string{userID}
	}
	return nil
}

// broadcastLocked writes one frame to every participant except excludeUserID
// (no exclusion when empty). Frames are enqueued while the session mutex is
// held, so every recipient observes broadcasts in the order the triggering
// events were processed. Returns the ids whose connections refused the
// write.
func (s *Session) broadcastLocked(data []byte, excludeUserID string) []string {
	var failed []string
	for id, p := range s.participants {
		if id == excludeUserID {
			continue
		}
		if err := p.conn.Send(data); err != nil {
			failed = append(failed, id)
		}
	}
	return failed
}
