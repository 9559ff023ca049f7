package intake

import (
	"net/mail"
	"strings"
	"sync"
)

// NormalizeSender canonicalizes a sender identity so the same person on the
// same channel always maps to one key. Email addresses lose display names
// and case; phone numbers keep only their digits.
func NormalizeSender(identity string) string {
	s := strings.TrimSpace(identity)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "@") {
		if addr, err := mail.ParseAddress(s); err == nil {
			return strings.ToLower(addr.Address)
		}
		return strings.ToLower(s)
	}
	if digits, ok := phoneDigits(s); ok {
		return digits
	}
	return strings.ToLower(s)
}

func phoneDigits(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
		default:
			return "", false
		}
	}
	if b.Len() < 7 {
		return "", false
	}
	return b.String(), true
}

// SenderKey is the serialization key for one sender on one channel.
func SenderKey(channel, sender string) string {
	return strings.ToLower(channel) + "\x00" + sender
}

// KeyedMutex serializes work per key. The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the function that releases it.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys currently held or waited on.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
