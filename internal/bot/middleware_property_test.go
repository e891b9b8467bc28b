// Property-based tests for the access checks behind the middleware.
package bot

import (
	"testing"

	"pgregory.net/rapid"

	"scorecard-bot/internal/config"
)

// TestAdminCheckProperty checks that a user is recognized as admin exactly
// when their ID is configured.
func TestAdminCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numAdmins := rapid.IntRange(1, 10).Draw(t, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		adminSet := make(map[int64]bool)
		for i := 0; i < numAdmins; i++ {
			adminIDs[i] = rapid.Int64Range(1, 1000000000).Draw(t, "adminID")
			adminSet[adminIDs[i]] = true
		}

		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		if cfg.IsAdmin(userID) != adminSet[userID] {
			t.Fatalf("admin check mismatch: userID=%d, adminIDs=%v", userID, adminIDs)
		}

		// Every configured admin must be recognized.
		idx := rapid.IntRange(0, numAdmins-1).Draw(t, "idx")
		if !cfg.IsAdmin(adminIDs[idx]) {
			t.Fatalf("known admin %d not recognized", adminIDs[idx])
		}
	})
}

// TestWhitelistCheckProperty checks that a chat is allowed exactly when it is
// whitelisted, and that an empty whitelist allows every chat.
func TestWhitelistCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numChats := rapid.IntRange(1, 10).Draw(t, "numChats")
		chatIDs := make([]int64, numChats)
		chatSet := make(map[int64]bool)
		for i := 0; i < numChats; i++ {
			// Group chat IDs are typically negative
			chatIDs[i] = -rapid.Int64Range(1, 1000000000).Draw(t, "chatID")
			chatSet[chatIDs[i]] = true
		}

		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chatIDs}}

		testChatID := -rapid.Int64Range(1, 1000000000).Draw(t, "testChatID")
		if cfg.IsChatAllowed(testChatID) != chatSet[testChatID] {
			t.Fatalf("whitelist check mismatch: chatID=%d, whitelist=%v", testChatID, chatIDs)
		}

		empty := &config.Config{}
		if !empty.IsChatAllowed(testChatID) {
			t.Fatalf("empty whitelist should allow chat %d", testChatID)
		}
	})
}

// TestPrivateUserCacheProperty checks the allow-after-group-use round trip.
func TestPrivateUserCacheProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		AllowPrivateUser(userID)
		if !IsPrivateUserAllowed(userID) {
			t.Fatalf("user %d should be allowed after being cached", userID)
		}
	})
}
