package scanlist

// Select returns the first item for which match is true. The scan is
// restarted whenever the list is modified underneath it.
func Select[T comparable](l *List[T], match func(T) bool) (T, bool, error) {
	return SelectE(l, func(item T) (bool, error) {
		return match(item), nil
	})
}

// SelectE is Select with a fallible predicate. A predicate error aborts the
// scan and is returned as is.
func SelectE[T comparable](l *List[T], match func(T) (bool, error)) (T, bool, error) {
	var zero T
	for {
		item, found, modified, err := selectOnce(l, match)
		if err != nil {
			return zero, false, err
		}
		if modified {
			continue
		}
		return item, found, nil
	}
}

func selectOnce[T comparable](l *List[T], match func(T) (bool, error)) (item T, found, modified bool, err error) {
	tok := l.StartIterating()
	defer l.StopIterating(tok)

	for {
		next, status, err := l.Next(tok)
		if err != nil {
			return item, false, false, err
		}
		switch status {
		case StatusModified:
			return item, false, true, nil
		case StatusEnd:
			return item, false, false, nil
		}

		ok, err := match(next)
		if err != nil {
			return item, false, false, err
		}
		if ok {
			return next, true, false, nil
		}
	}
}

// Process calls fn for every item, restarting from the head when the list is
// modified. fn may therefore see an item more than once and must be
// idempotent. The first error from fn aborts processing.
func Process[T comparable](l *List[T], fn func(T) error) error {
	for {
		status, err := Scan(l, fn)
		if err != nil {
			return err
		}
		if status != StatusModified {
			return nil
		}
	}
}

// Scan makes a single pass over the list. It returns StatusEnd when every
// item was visited and StatusModified when the pass was cut short by a
// concurrent modification. The first error from fn aborts the pass.
func Scan[T comparable](l *List[T], fn func(T) error) (Status, error) {
	tok := l.StartIterating()
	defer l.StopIterating(tok)

	for {
		item, status, err := l.Next(tok)
		if err != nil {
			return status, err
		}
		if status != StatusOK {
			return status, nil
		}
		if err := fn(item); err != nil {
			return StatusOK, err
		}
	}
}
