// Package db installs the native "DBConnection" class: a thin wrapper over
// database/sql, the domain-stack home for the SQL driver dependencies
// (go-sql-driver/mysql, lib/pq, modernc.org/sqlite), generalized from a
// PHP-specific PDO driver-registry shape down to whatever database/sql
// itself already abstracts.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/stdlib"
	"github.com/jay-lang/jay/values"
	"github.com/jay-lang/jay/vm"
)

// Install registers the "DBConnection" class as a process-wide built-in,
// constructible from any module via "new DBConnection(driver, dsn)".
func Install(reg *registry.Registry) {
	class := registry.NewClass("DBConnection", "")

	class.AddFunction(&registry.Function{
		Name:  "new",
		Class: "DBConnection",
		Native: func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
			proc, err := stdlib.ProcessOf(context)
			if err != nil {
				return values.Nil(), err
			}
			if len(args) != 2 {
				return values.Nil(), stdlib.ArgCountError("new DBConnection", 2, len(args))
			}
			driver, ok := stringArg(proc, args[0])
			if !ok {
				return values.Nil(), fmt.Errorf("new DBConnection: driver must be a string")
			}
			dsn, ok := stringArg(proc, args[1])
			if !ok {
				return values.Nil(), fmt.Errorf("new DBConnection: dsn must be a string")
			}
			conn, err := sql.Open(driver, dsn)
			if err != nil {
				return values.Nil(), err
			}
			obj, ok := proc.Heap.Get(self)
			if !ok {
				return values.Nil(), fmt.Errorf("new DBConnection: dangling receiver")
			}
			obj.Payload = conn
			return values.Nil(), nil
		},
	})

	class.AddFunction(&registry.Function{
		Name:  "query",
		Class: "DBConnection",
		Native: func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
			proc, err := stdlib.ProcessOf(context)
			if err != nil {
				return values.Nil(), err
			}
			conn, query, params, err := prepare(proc, self, args, "query")
			if err != nil {
				return values.Nil(), err
			}
			rows, err := conn.Query(query, params...)
			if err != nil {
				return values.Nil(), err
			}
			defer rows.Close()
			cols, err := rows.Columns()
			if err != nil {
				return values.Nil(), err
			}
			result, err := proc.Heap.NewArray()
			if err != nil {
				return values.Nil(), err
			}
			for rows.Next() {
				raw := make([]interface{}, len(cols))
				scanDest := make([]interface{}, len(cols))
				for i := range raw {
					scanDest[i] = &raw[i]
				}
				if err := rows.Scan(scanDest...); err != nil {
					return values.Nil(), err
				}
				elems := make([]values.Entity, len(cols))
				for i, v := range raw {
					elems[i], err = toEntity(proc, v)
					if err != nil {
						return values.Nil(), err
					}
				}
				tup, err := proc.Heap.NewTuple(elems)
				if err != nil {
					return values.Nil(), err
				}
				proc.Heap.ArrayAppend(result.Ref(), values.Object(tup.Ref()))
			}
			return values.Object(result.Ref()), rows.Err()
		},
	})

	class.AddFunction(&registry.Function{
		Name:  "exec",
		Class: "DBConnection",
		Native: func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
			proc, err := stdlib.ProcessOf(context)
			if err != nil {
				return values.Nil(), err
			}
			conn, query, params, err := prepare(proc, self, args, "exec")
			if err != nil {
				return values.Nil(), err
			}
			result, err := conn.Exec(query, params...)
			if err != nil {
				return values.Nil(), err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return values.Nil(), err
			}
			return values.Int(int32(n)), nil
		},
	})

	class.AddFunction(&registry.Function{
		Name:  "close",
		Class: "DBConnection",
		Native: func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
			proc, err := stdlib.ProcessOf(context)
			if err != nil {
				return values.Nil(), err
			}
			conn, ok := connOf(proc, self)
			if !ok {
				return values.Nil(), nil
			}
			return values.Nil(), conn.Close()
		},
	})

	reg.RegisterBuiltin(class)
}

func connOf(proc *vm.Process, self values.Ref) (*sql.DB, bool) {
	obj, ok := proc.Heap.Get(self)
	if !ok {
		return nil, false
	}
	conn, ok := obj.Payload.(*sql.DB)
	return conn, ok
}

// prepare resolves the connection payload and the (query, bind params)
// argument shape: "method(query)" is a lone string argument, "method(query,
// a, b, ...)" lowers to a Tuple whose first element is the query string and
// the rest are bind parameters.
func prepare(proc *vm.Process, self values.Ref, args []values.Entity, method string) (*sql.DB, string, []interface{}, error) {
	conn, ok := connOf(proc, self)
	if !ok {
		return nil, "", nil, fmt.Errorf("%s: connection is closed or was never opened", method)
	}
	if len(args) == 0 {
		return nil, "", nil, stdlib.ArgCountError(method, 1, 0)
	}
	query, ok := stringArg(proc, args[0])
	if !ok {
		return nil, "", nil, fmt.Errorf("%s: query must be a string", method)
	}
	params := make([]interface{}, 0, len(args)-1)
	for _, a := range args[1:] {
		params = append(params, toGoValue(proc, a))
	}
	return conn, query, params, nil
}

func stringArg(proc *vm.Process, e values.Entity) (string, bool) {
	if e.Kind() != values.KindObject {
		return "", false
	}
	return proc.StringValue(e.ObjectRef())
}

func toGoValue(proc *vm.Process, e values.Entity) interface{} {
	switch e.Kind() {
	case values.KindInt:
		return e.IntValue()
	case values.KindFloat:
		return e.FloatValue()
	case values.KindChar:
		return string(rune(e.CharValue()))
	case values.KindNil:
		return nil
	case values.KindObject:
		if s, ok := proc.StringValue(e.ObjectRef()); ok {
			return s
		}
		return nil
	default:
		return nil
	}
}

func toEntity(proc *vm.Process, v interface{}) (values.Entity, error) {
	switch t := v.(type) {
	case nil:
		return values.Nil(), nil
	case int64:
		return values.Int(int32(t)), nil
	case float64:
		return values.Float(t), nil
	case bool:
		if t {
			return values.Int(1), nil
		}
		return values.Nil(), nil
	case []byte:
		ref, err := proc.NewString(string(t))
		if err != nil {
			return values.Nil(), err
		}
		return values.Object(ref), nil
	case string:
		ref, err := proc.NewString(t)
		if err != nil {
			return values.Nil(), err
		}
		return values.Object(ref), nil
	default:
		ref, err := proc.NewString(fmt.Sprintf("%v", t))
		if err != nil {
			return values.Nil(), err
		}
		return values.Object(ref), nil
	}
}
