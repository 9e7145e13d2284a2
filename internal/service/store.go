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

import "sort"

// City is served by the get_city endpoint.
type City struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Role is served by the get_role endpoint.
type Role struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User is served by the get_user endpoint. City and Role are resolved through
// the upstream service.
type User struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Age    int    `json:"age"`
	CityID int    `json:"city_id"`
	RoleID int    `json:"role_id"`
	City   *City  `json:"city,omitempty"`
	Role   *Role  `json:"role,omitempty"`
}

// store is a read only in-memory data set.
type store struct {
	cities map[int]City
	roles  map[int]Role
	users  map[int]User
}

func newStore() *store {
	s := &store{
		cities: map[int]City{},
		roles:  map[int]Role{},
		users:  map[int]User{},
	}
	for _, c := range []City{
		{ID: 1, Name: "Amsterdam"},
		{ID: 2, Name: "Shanghai"},
		{ID: 3, Name: "San Francisco"},
	} {
		s.cities[c.ID] = c
	}
	for _, r := range []Role{
		{ID: 1, Name: "admin"},
		{ID: 2, Name: "developer"},
		{ID: 3, Name: "viewer"},
	} {
		s.roles[r.ID] = r
	}
	for _, u := range []User{
		{ID: 1, Name: "alice", Age: 34, CityID: 1, RoleID: 1},
		{ID: 2, Name: "bob", Age: 27, CityID: 2, RoleID: 2},
		// references a role which does not exist
		{ID: 3, Name: "carol", Age: 41, CityID: 3, RoleID: 9},
	} {
		s.users[u.ID] = u
	}
	return s
}

func (s *store) city(id int) (City, bool) {
	c, ok := s.cities[id]
	return c, ok
}

func (s *store) role(id int) (Role, bool) {
	r, ok := s.roles[id]
	return r, ok
}

func (s *store) user(id int) (User, bool) {
	u, ok := s.users[id]
	return u, ok
}

func (s *store) allUsers() []User {
	users := make([]User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
