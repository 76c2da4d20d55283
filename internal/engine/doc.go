// Package engine realizes compiled execution plans against a database client.
//
// A plan produced by internal/plan says which client operation to call, how
// positional slots bind to named arguments, how rows become values and how
// failures become the declared error type. The engine does exactly that and
// nothing more:
//
//	execute        -> Client.Execute        -> nothing or the affected row count
//	query_rows     -> Client.QueryRows      -> every row converted, in order
//	query_optional -> Client.QueryOptional  -> zero or one converted row
//	query_one      -> Client.QueryOne       -> exactly one converted row
//	query_stream   -> Client.QueryStream    -> the raw row stream
//
// Client failures always propagate immediately. With an error mapper the
// failure is passed through the named mapper; otherwise it is wrapped in a
// CallError that keeps the original reachable through errors.Is and
// errors.As.
//
// Two clients ship with the package: SQLClient over database/sql (sqlite3,
// the pgx stdlib driver, anything else with a driver) and PgxClient over a
// pgx connection or pool.
//
// Every call is logged through slog with a time-ordered call ID.
package engine
