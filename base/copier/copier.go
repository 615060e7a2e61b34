// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package copier

import (
	"reflect"

	"github.com/juju/errors"
)

// Copy deep copies src into dst. dst must be a pointer. Unexported fields
// are skipped, everything else is copied by value recursively.
func Copy(dst, src interface{}) error {
	dstPtr := reflect.ValueOf(dst)
	if dstPtr.Kind() != reflect.Ptr {
		return errors.NotValidf("expect dst to be a pointer, but receive %v", dstPtr.Kind())
	}
	return copyValue(dstPtr.Elem(), reflect.ValueOf(src))
}

func copyValue(dst, src reflect.Value) error {
	if dst.Kind() != src.Kind() {
		if dst.Kind() != reflect.Interface {
			return errors.NotValidf("different type: %v != %v", dst.Kind(), src.Kind())
		}
		newValue := reflect.New(src.Type())
		if err := copyValue(newValue.Elem(), src); err != nil {
			return err
		}
		dst.Set(newValue.Elem())
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Uint,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128, reflect.String:
		dst.Set(src)
	case reflect.Slice:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return nil
		}
		if dst.IsNil() || dst.Cap() < src.Len() {
			dst.Set(reflect.MakeSlice(src.Type(), src.Len(), src.Len()))
		} else if dst.CanAddr() {
			dst.SetLen(src.Len())
		}
		for i := 0; i < src.Len(); i++ {
			if err := copyValue(dst.Index(i), src.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return nil
		}
		dst.Set(reflect.MakeMap(dst.Type()))
		for _, k := range src.MapKeys() {
			newValue := reflect.New(src.MapIndex(k).Type())
			if err := copyValue(newValue.Elem(), src.MapIndex(k)); err != nil {
				return err
			}
			dst.SetMapIndex(k, newValue.Elem())
		}
	case reflect.Struct:
		if dst.Type().Name() != src.Type().Name() {
			return errors.NotValidf("different struct: %v != %v", dst.Type().Name(), src.Type().Name())
		}
		for i := 0; i < src.NumField(); i++ {
			if !dst.Field(i).CanSet() {
				continue
			}
			if err := copyValue(dst.Field(i), src.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Ptr:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(src.Elem().Type()))
		}
		if err := copyValue(dst.Elem(), src.Elem()); err != nil {
			return err
		}
	case reflect.Interface:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return nil
		}
		newValue := reflect.New(src.Elem().Type())
		if err := copyValue(newValue.Elem(), src.Elem()); err != nil {
			return err
		}
		dst.Set(newValue.Elem())
	default:
		return errors.NotValidf("unsupported type: %v", dst.Kind())
	}
	return nil
}
