// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

// Unit is a type not containing any value.
//
// Dial pipelines that start from a constant endpoint are [Func[Unit, B]].
type Unit struct{}
