// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/tetratelabs/multierror"

	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

// setErrors allows one to set the percentage of error responses this service
// will generate on the data endpoints.
func (ep *Endpoints) setErrors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	i, err := strconv.Atoi(mux.Vars(r)["percentage"])
	if err != nil || i < 0 || i > 100 {
		ep.writeError(ctx, w, http.StatusBadRequest, errPercentage)
		return
	}
	ep.mtx.Lock()
	ep.errors = int32(i)
	ep.mtx.Unlock()

	ep.writeMessage(ctx, w, fmt.Sprintf("errors percentage set to: %d%%", i))
}

// setLatency allows one to set the latency this service will add to the data
// endpoints. Raw numbers are taken as milliseconds.
func (ep *Endpoints) setLatency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := mux.Vars(r)["duration"]

	d, err := time.ParseDuration(raw)
	if err != nil {
		// not a duration string, let's see if it is a raw number...
		var i int
		if i, err = strconv.Atoi(raw); err != nil {
			ep.writeError(ctx, w, http.StatusBadRequest, errDuration)
			return
		}
		d = time.Duration(i) * time.Millisecond
	}
	if d < 0 {
		ep.writeError(ctx, w, http.StatusBadRequest, errDuration)
		return
	}

	ep.mtx.Lock()
	ep.duration = d
	ep.mtx.Unlock()

	ep.writeMessage(ctx, w, fmt.Sprintf("duration set to: %s", d.String()))
}

// misbehave applies the configured latency and error percentage. It returns
// true if a response has been written.
func (ep *Endpoints) misbehave(ctx context.Context, w http.ResponseWriter) bool {
	ep.mtx.RLock()
	d := ep.duration
	e := ep.errors
	ep.mtx.RUnlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			ep.writeError(ctx, w, http.StatusServiceUnavailable, ctx.Err())
			return true
		}
	}
	if rand.Int31n(100) < e {
		ep.writeError(ctx, w, http.StatusInternalServerError, errInternal)
		return true
	}
	return false
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// lookup serves a single record found by the id path variable inside a scoped
// database span.
func (ep *Endpoints) lookup(w http.ResponseWriter, r *http.Request, op observability.Operation,
	find func(id int) (interface{}, bool)) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		ep.writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	if ep.misbehave(ctx, w) {
		return
	}

	var data interface{}
	err = ep.tracer.Trace(ctx, op, func(context.Context) error {
		var ok bool
		if data, ok = find(id); !ok {
			return fmt.Errorf("%w: %s %d", errNotFound, op.Category, id)
		}
		return nil
	})
	if err != nil {
		ep.writeError(ctx, w, http.StatusNotFound, err)
		return
	}
	ep.writeData(ctx, w, data)
}

func (ep *Endpoints) getCity(w http.ResponseWriter, r *http.Request) {
	ep.lookup(w, r, observability.Operation{
		Name:     "query_city",
		Category: "city",
		Kind:     "db",
		Detail:   "SELECT * FROM cities WHERE id = $1",
	}, func(id int) (interface{}, bool) { return ep.store.city(id) })
}

func (ep *Endpoints) getRole(w http.ResponseWriter, r *http.Request) {
	ep.lookup(w, r, observability.Operation{
		Name:     "query_role",
		Category: "role",
		Kind:     "db",
		Detail:   "SELECT * FROM roles WHERE id = $1",
	}, func(id int) (interface{}, bool) { return ep.store.role(id) })
}

func (ep *Endpoints) getUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ep.misbehave(ctx, w) {
		return
	}

	var users []User
	_ = ep.tracer.Trace(ctx, observability.Operation{
		Name:     "query_users",
		Category: "user",
		Kind:     "db",
		Detail:   "SELECT * FROM users",
	}, func(context.Context) error {
		users = ep.store.allUsers()
		return nil
	})
	ep.writeData(ctx, w, users)
}

// getUser loads a user and resolves its city and role concurrently through
// the upstream service.
func (ep *Endpoints) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		ep.writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	if ep.misbehave(ctx, w) {
		return
	}

	var user User
	err = ep.tracer.Trace(ctx, observability.Operation{
		Name:     "query_user",
		Category: "user",
		Kind:     "db",
		Detail:   "SELECT * FROM users WHERE id = $1",
	}, func(context.Context) error {
		var ok bool
		if user, ok = ep.store.user(id); !ok {
			return fmt.Errorf("%w: user %d", errNotFound, id)
		}
		return nil
	})
	if err != nil {
		ep.writeError(ctx, w, http.StatusNotFound, err)
		return
	}

	var (
		city City
		role Role
		wg   sync.WaitGroup
		mtx  sync.Mutex
		mErr error
	)
	resolve := func(name, path string, target interface{}) {
		defer wg.Done()
		err := ep.tracer.Trace(ctx, observability.Operation{
			Name:     name,
			Category: "user",
			Detail:   path,
		}, func(ctx context.Context) error {
			return ep.fetch(ctx, path, target)
		})
		if err != nil {
			mtx.Lock()
			mErr = multierror.Append(mErr, err)
			mtx.Unlock()
		}
	}
	wg.Add(2)
	go resolve("get_city_by_id", fmt.Sprintf("/cities/%d", user.CityID), &city)
	go resolve("get_role_by_id", fmt.Sprintf("/roles/%d", user.RoleID), &role)
	wg.Wait()

	if mErr != nil {
		ep.writeError(ctx, w, http.StatusBadGateway, mErr)
		return
	}
	user.City, user.Role = &city, &role
	ep.writeData(ctx, w, user)
}

// fetch calls path on the upstream service and decodes the response data
// into target.
func (ep *Endpoints) fetch(ctx context.Context, path string, target interface{}) error {
	res, err := ep.client.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errUpstream, path, err)
	}
	var env envelope
	if err := json.Unmarshal(res.Body(), &env); err != nil {
		return fmt.Errorf("%w: %s: invalid response: %v", errUpstream, path, err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("%w: %s: %s: %s", errUpstream, path, res.Status(), env.Message)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("%w: %s: invalid data: %v", errUpstream, path, err)
	}
	return nil
}
