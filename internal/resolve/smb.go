package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oiweiwei/go-msrpc/dcerpc"
	"github.com/oiweiwei/go-msrpc/msrpc/dtyp"
	srvsvc "github.com/oiweiwei/go-msrpc/msrpc/srvs/srvsvc/v3"
	wkssvc "github.com/oiweiwei/go-msrpc/msrpc/wkst/wkssvc/v1"
	"github.com/oiweiwei/go-msrpc/ssp"
	"github.com/oiweiwei/go-msrpc/ssp/credential"
	"github.com/oiweiwei/go-msrpc/ssp/gssapi"
	"go.uber.org/zap"

	"netsweep/internal/scan"
)

const smbPort = 445

var (
	errEmptySMBInfo   = errors.New("no computer or domain name returned")
	errUnexpectedInfo = errors.New("unexpected info level in reply")
)

// SMBInfo is the workstation identity reported over anonymous DCE/RPC.
type SMBInfo struct {
	ComputerName string `json:"computerName,omitempty"`
	Domain       string `json:"domain,omitempty"`
	// Source names the pipe that answered.
	Source string `json:"source,omitempty"`
}

func (i SMBInfo) empty() bool {
	return i.ComputerName == "" && i.Domain == ""
}

// smbEndpoint is a named pipe plus the call that extracts an identity from it.
type smbEndpoint struct {
	pipe  string
	query func(ctx context.Context, conn dcerpc.Conn) (SMBInfo, error)
}

// smbEndpoints are tried in order. The workstation service also reports the
// domain, the server service only the name.
var smbEndpoints = []smbEndpoint{
	{pipe: "wkssvc", query: queryWorkstation},
	{pipe: "srvsvc", query: queryServer},
}

// smbCallFunc runs one endpoint query against a host.
type smbCallFunc func(ctx context.Context, addr scan.Address, ep smbEndpoint) (SMBInfo, error)

// lookupSMB walks smbEndpoints until one yields a name.
func (r *Resolver) lookupSMB(ctx context.Context, addr scan.Address) *SMBInfo {
	for _, ep := range smbEndpoints {
		if ctx.Err() != nil {
			return nil
		}
		info, err := r.smbCall(ctx, addr, ep)
		if err == nil && info.empty() {
			err = errEmptySMBInfo
		}
		if err != nil {
			r.logger.Debug("smb identity unavailable",
				zap.Stringer("host", addr), zap.String("pipe", ep.pipe), zap.Error(err))
			continue
		}
		info.Source = ep.pipe
		return &info
	}
	return nil
}

// callSMBPipe binds anonymously to the endpoint's pipe over SMB.
func (r *Resolver) callSMBPipe(ctx context.Context, addr scan.Address, ep smbEndpoint) (SMBInfo, error) {
	secCtx := gssapi.NewSecurityContext(ctx,
		gssapi.WithCredential(credential.Anonymous()),
		gssapi.WithMechanismFactory(ssp.NTLM),
		gssapi.WithMechanismFactory(ssp.SPNEGO),
	)

	conn, err := dcerpc.Dial(secCtx, addr.String(),
		dcerpc.WithEndpoint("ncacn_np:["+ep.pipe+"]"),
		dcerpc.WithTimeout(r.timeout),
		dcerpc.WithSMBPort(smbPort),
	)
	if err != nil {
		return SMBInfo{}, fmt.Errorf("dial %s: %w", ep.pipe, err)
	}
	defer func() { _ = conn.Close(secCtx) }()

	return ep.query(secCtx, conn)
}

func queryWorkstation(ctx context.Context, conn dcerpc.Conn) (SMBInfo, error) {
	client, err := wkssvc.NewWkssvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return SMBInfo{}, fmt.Errorf("bind wkssvc: %w", err)
	}
	resp, err := client.GetInfo(ctx, &wkssvc.GetInfoRequest{Level: 100})
	if err != nil {
		return SMBInfo{}, fmt.Errorf("wkssvc GetInfo: %w", err)
	}

	var info *wkssvc.WorkstationInfo100
	if resp.WorkstationInfo != nil {
		info, _ = resp.WorkstationInfo.GetValue().(*wkssvc.WorkstationInfo100)
	}
	if info == nil {
		return SMBInfo{}, errUnexpectedInfo
	}
	return SMBInfo{
		ComputerName: cleanSMBString(info.ComputerName),
		Domain:       cleanSMBString(info.LANGroup),
	}, nil
}

func queryServer(ctx context.Context, conn dcerpc.Conn) (SMBInfo, error) {
	client, err := srvsvc.NewSrvsvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return SMBInfo{}, fmt.Errorf("bind srvsvc: %w", err)
	}
	resp, err := client.GetInfo(ctx, &srvsvc.GetInfoRequest{Level: 100})
	if err != nil {
		return SMBInfo{}, fmt.Errorf("srvsvc GetInfo: %w", err)
	}

	var info *dtyp.ServerInfo100
	if resp.Info != nil {
		info, _ = resp.Info.GetValue().(*dtyp.ServerInfo100)
	}
	if info == nil {
		return SMBInfo{}, errUnexpectedInfo
	}
	return SMBInfo{ComputerName: cleanSMBString(info.Name)}, nil
}

// cleanSMBString drops the NUL terminators NDR strings carry.
func cleanSMBString(value string) string {
	return strings.TrimSpace(strings.Trim(value, "\x00"))
}
