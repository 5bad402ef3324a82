package database

import "fmt"

// Open connects to the backend named by driver ("postgres" or "mongo").
// dbName is only used by mongo.
func Open(driver, dsn, dbName string) (ChatRepository, error) {
	switch driver {
	case "postgres":
		repo, err := NewPgChatRepository(dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return repo, nil
	case "mongo":
		repo, err := NewMongoChatRepository(dsn, dbName)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
