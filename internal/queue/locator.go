package queue

import (
	"strings"
)

// NameFromLocator resolves a queue locator such as
// "https://sqs.ap-1.amazonaws.com/007/MyQueue" to its trailing path segment.
// A bare name resolves to itself.
func NameFromLocator(locator string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(locator), "/")
	if trimmed == "" {
		return "", ErrEmptyQueue
	}

	name := trimmed
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		name = trimmed[i+1:]
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "\\\x00") {
		return "", ErrInvalidQueueName
	}
	return name, nil
}

// ValidatePush checks the arguments every backend requires for a push.
func ValidatePush(locator, body string) (string, error) {
	name, err := NameFromLocator(locator)
	if err != nil {
		return "", err
	}
	if body == "" {
		return "", ErrEmptyBody
	}
	return name, nil
}

// ValidateReceipt checks the arguments every backend requires for a delete.
func ValidateReceipt(locator, receiptID string) (string, error) {
	name, err := NameFromLocator(locator)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(receiptID) == "" {
		return "", ErrEmptyReceipt
	}
	return name, nil
}
