package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/tenantd/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
)

// namespaceExists is the server error code for creating a collection that already exists.
const namespaceExists = 48

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == namespaceExists
}

// mapMongoError maps driver errors to store sentinels. Timeouts and network failures become
// store.ErrStorageUnavailable; everything else is wrapped with the operation for context.
func mapMongoError(op string, err error) error {
	if err == nil {
		return nil
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, store.ErrStorageUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
