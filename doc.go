// Package txflow is a Bun client with ambient transactions.
//
//	client := txflow.New(db)
//	err := client.Transaction(ctx, func(ctx context.Context) error {
//		if err := users.Save(ctx, user); err != nil {
//			return err
//		}
//		return audit.Record(ctx, "signup", user.Email)
//	}, nil)
//
// Everything called with the context handed to fn, including goroutines
// started from it, runs in the same database transaction. Services built
// with NewService or repository.NewRepository over the client need no
// transaction parameter.
package txflow
