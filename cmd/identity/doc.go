// Package identity owns warden's principals: the User record, the GuardUser
// view guards consume, and UserProvider implementations over PostgreSQL and
// process memory.
//
// Providers never decide authentication outcomes. A lookup that finds nothing
// returns (nil, nil); errors are reserved for store failures and for records
// of the wrong shape (ErrInvalidUserObject).
package identity
