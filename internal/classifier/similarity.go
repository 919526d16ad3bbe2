// internal/classifier/similarity.go
package classifier

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Similarity returns the sequence-matcher ratio of a and b, compared per
// character and case-insensitively: 2*M/T where M is the number of matched
// characters and T the total length of both strings.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

type typoEntry struct {
	command    string
	variations []string
}

// typoTable is checked in order; the first variation within the threshold wins.
var typoTable = []typoEntry{
	{"show beneficiaries", []string{"show beneficiar", "beneficiries", "beneficireis"}},
	{"buy airtime", []string{"buy airtime", "airtime", "buy air time"}},
	{"buy data", []string{"buy data", "data bundle"}},
	{"check balance", []string{"balance", "my balance", "wallet"}},
}

// commandKeywords mark a message as an intended command; typo tolerance is
// skipped for them so a correctly spelled request is never second-guessed.
var commandKeywords = []string{
	"save ", "delete ", "remove ", "saved contacts",
	"show beneficiar", "list beneficiar", "my beneficiar", "save beneficiar",
	"balance", "wallet", "how much money", "account", "details",
	"history", "transactions", "statement", "pin",
	"airtime", "recharge", "topup", "top up", "data", "bundle",
	"electricity", "power", "token", "eskom", "meter",
}

const typoThreshold = 0.65

// suggestCorrection returns the canonical command msg is a misspelling of.
func suggestCorrection(msg string) (string, bool) {
	if typoExempt(msg) {
		return "", false
	}
	for _, entry := range typoTable {
		for _, v := range entry.variations {
			if Similarity(msg, v) >= typoThreshold {
				return entry.command, true
			}
		}
	}
	return "", false
}

func typoExempt(msg string) bool {
	if strings.ContainsAny(msg, "0123456789") {
		return true
	}
	for _, entry := range typoTable {
		if msg == entry.command {
			return true
		}
		for _, v := range entry.variations {
			if msg == v {
				return true
			}
		}
	}
	return containsAny(msg, commandKeywords...)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
