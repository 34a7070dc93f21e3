package infer

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// DefaultFieldWordlist returns the built-in candidate field names. The list
// leans toward names that show up in real products: resources in singular
// and plural, relay-style traversal fields, and the usual auth mutations.
func DefaultFieldWordlist() []string {
	return []string{
		"user", "users", "me", "currentUser", "viewer",
		"account", "accounts", "profile", "profiles",
		"post", "posts", "article", "articles",
		"comment", "comments", "message", "messages",
		"notification", "notifications",
		"order", "orders", "product", "products",
		"item", "items", "category", "categories", "tag", "tags",
		"file", "files", "image", "images", "document", "documents",
		"event", "events", "task", "tasks", "project", "projects",
		"team", "teams", "organization", "organizations",
		"company", "companies", "customer", "customers",
		"client", "clients", "invoice", "invoices",
		"payment", "payments", "subscription", "subscriptions",
		"plan", "plans", "setting", "settings", "config", "configuration",
		"permission", "permissions", "role", "roles", "group", "groups",
		"session", "sessions", "token", "tokens",
		"key", "keys", "secret", "secrets", "credential", "credentials",
		"log", "logs", "audit", "audits", "activity", "activities",
		"analytics", "stats", "statistics", "metrics",
		"report", "reports", "dashboard",
		"search", "query", "find", "get", "list", "all",
		"node", "nodes", "edge", "edges", "connection", "connections",
		"health", "status", "version", "info",
		"createUser", "updateUser", "deleteUser",
		"login", "logout", "register", "signup", "signin", "signout",
		"authenticate", "authorize", "verify", "confirm",
		"reset", "resetPassword", "changePassword", "updatePassword", "forgotPassword",
		"sendEmail", "sendMessage",
		"createPost", "updatePost", "deletePost",
		"createOrder", "updateOrder", "deleteOrder",
		"createProduct", "updateProduct", "deleteProduct",
		"upload", "uploadFile", "uploadImage",
		"create", "update", "delete", "remove", "add", "set", "save", "submit",
		"approve", "reject", "cancel", "refund",
		"subscribe", "unsubscribe", "follow", "unfollow",
		"like", "unlike", "share", "invite", "join", "leave",
		"id", "name", "title", "description", "email", "url", "slug",
		"createdAt", "updatedAt",
	}
}

// DefaultArgumentWordlist returns the built-in candidate argument names,
// covering pagination, filtering and lookup conventions.
func DefaultArgumentWordlist() []string {
	return []string{
		"id", "input", "where", "filter", "limit", "offset",
		"first", "last", "after", "before",
		"orderBy", "order", "sort", "skip", "take",
		"page", "pageSize", "cursor",
		"data", "name", "email", "query", "search",
	}
}

// LoadWordlist reads one candidate name per line. Blank lines and #-comments
// are skipped; entries that are not valid GraphQL names are rejected so a
// stray wordlist never produces unparseable probes.
func LoadWordlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening wordlist")
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !validName(line) {
			return nil, errors.Errorf("wordlist entry %q is not a valid GraphQL name", line)
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading wordlist")
	}
	return dedupe(words), nil
}
