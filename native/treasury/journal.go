package treasury

// journal tracks undo closures for state writes so a failed operation can be
// rolled back after mutations were already committed to the store. Writes are
// visible to reentrant calls the moment they happen; frames exist only to
// restore pre-images when an operation fails part-way. Committing a nested
// frame folds its entries into the parent so an outer revert also unwinds the
// inner operation's effects.
type journal struct {
	frames [][]func() error
}

func (j *journal) begin() {
	j.frames = append(j.frames, nil)
}

func (j *journal) record(undo func() error) {
	if len(j.frames) == 0 {
		return
	}
	top := len(j.frames) - 1
	j.frames[top] = append(j.frames[top], undo)
}

func (j *journal) commit() {
	top := len(j.frames) - 1
	if top < 0 {
		return
	}
	entries := j.frames[top]
	j.frames = j.frames[:top]
	if len(j.frames) > 0 {
		parent := len(j.frames) - 1
		j.frames[parent] = append(j.frames[parent], entries...)
	}
}

func (j *journal) revert() {
	top := len(j.frames) - 1
	if top < 0 {
		return
	}
	entries := j.frames[top]
	j.frames = j.frames[:top]
	for i := len(entries) - 1; i >= 0; i-- {
		// Best effort: pre-image restores into the same store that accepted
		// the original write.
		_ = entries[i]()
	}
}
